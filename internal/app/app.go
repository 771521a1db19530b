package app

import "wormhole/internal/domain"

// App is what the shell talks to: the session service plus the sink that
// stores received files.
type App struct {
	Sessions domain.SessionService
	Output   domain.FileSink
}

// New assembles an App from a Wire.
func New(w *Wire) *App {
	return &App{Sessions: w.Sessions, Output: w.Output}
}

// Save writes a completed receive to the output sink and returns the path.
func (a *App) Save(ev domain.Event) (string, error) {
	return a.Output.Save(ev.Manifest.Name, ev.Data)
}
