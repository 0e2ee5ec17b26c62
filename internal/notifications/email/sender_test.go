package email

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zozbit-notify/internal/types"
)

func newTestSender(transport types.Sender[*OutboundEmail]) *EmailSender {
	return NewEmailSender(SenderConfig{
		Renderer:  NewRenderer(shippedAssets, testLogger()),
		Assembler: NewAssembler(shippedAssets, nil, testLogger()),
		Transport: transport,
		From:      "noreply@zozbit.com",
		To:        "ops@zozbit.com",
		Logger:    testLogger(),
	})
}

func TestEmailSender_PassesAssembledMessageToTransport(t *testing.T) {
	var got *OutboundEmail
	sender := newTestSender(types.SenderFunc[*OutboundEmail](func(ctx context.Context, msg *OutboundEmail) error {
		got = msg
		return nil
	}))

	req := sampleRequest()
	req.TemplateVariables.ActionURL = strPtr("https://app.zozbit.com/dashboard")
	require.NoError(t, sender.Send(context.Background(), req.Sanitized()))

	require.NotNil(t, got)
	assert.Equal(t, "noreply@zozbit.com", got.From)
	assert.Equal(t, "ops@zozbit.com", got.To)
	assert.Equal(t, "Welcome", got.Subject)

	_, parts := parseMessage(t, got.Raw)
	require.Len(t, parts, 4)
	assert.Equal(t, "Welcome aboard", string(parts[1].body))
	assert.Contains(t, string(parts[2].body), `href="https://app.zozbit.com/dashboard"`)
}

func TestEmailSender_EndToEndOverSMTP(t *testing.T) {
	server := startFakeSMTP(t, false)
	sender := newTestSender(NewDispatcher(smtpConfig(server.port()), testLogger()))

	req := sampleRequest()
	req.PreviewText = strPtr("Preview!")
	require.NoError(t, sender.Send(context.Background(), req.Sanitized()))

	got := server.received()
	require.Len(t, got, 1)
	assert.Equal(t, "noreply@zozbit.com", got[0].From)
	assert.Equal(t, []string{"ops@zozbit.com"}, got[0].To)
	assert.True(t, strings.Contains(got[0].Data, "Preview!"))
}

func TestEmailSender_UnreachableRelayReturnsDispatchError(t *testing.T) {
	sender := newTestSender(NewDispatcher(smtpConfig(closedPort(t)), testLogger()))

	err := sender.Send(context.Background(), sampleRequest().Sanitized())

	var de *DispatchError
	require.True(t, errors.As(err, &de), "want *DispatchError, got %v", err)
	assert.Equal(t, StageConnect, de.Stage)
}

func TestEmailSender_RenderFailureStillSends(t *testing.T) {
	var got *OutboundEmail
	sender := NewEmailSender(SenderConfig{
		Renderer:  NewRenderer(nil, testLogger()),
		Assembler: NewAssembler(nil, nil, testLogger()),
		Transport: types.SenderFunc[*OutboundEmail](func(ctx context.Context, msg *OutboundEmail) error {
			got = msg
			return nil
		}),
		From: "noreply@zozbit.com",
		To:   "ops@zozbit.com",
	})

	require.NoError(t, sender.Send(context.Background(), sampleRequest()))
	require.NotNil(t, got)

	_, parts := parseMessage(t, got.Raw)
	require.Len(t, parts, 3)
	assert.True(t, strings.HasPrefix(string(parts[2].body), "<!DOCTYPE html>"))
}
