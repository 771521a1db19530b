package domain_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"wormhole/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want domain.ErrorClass
	}{
		{nil, domain.ClassUnknown},
		{context.Canceled, domain.ClassAborted},
		{fmt.Errorf("code: %w", domain.ErrMalformedCode), domain.ClassInput},
		{domain.ErrRendezvousTimeout, domain.ClassBroker},
		{domain.ErrAuthenticationFailed, domain.ClassAuthentication},
		{fmt.Errorf("transit: %w", domain.ErrNegotiationTimeout), domain.ClassNegotiation},
		{domain.ErrConnectionLost, domain.ClassTransfer},
	}
	for _, c := range cases {
		require.Equal(t, c.want, domain.Classify(c.err), "%v", c.err)
	}
}

func TestMailboxVocabulary(t *testing.T) {
	require.Equal(t, "welcome", domain.MsgWelcome)
	require.Equal(t, "scary", domain.MoodScary)
	require.Less(t, domain.StateKeyed, domain.StateConfirmed)
	require.Less(t, domain.StateDisconnected, domain.StateClosed)
}
