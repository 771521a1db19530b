package interfaces

// FileSink stores a received file and returns where it ended up.
type FileSink interface {
	Save(name string, data []byte) (string, error)
}
