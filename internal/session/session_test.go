package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"devactivate/internal/activation"
	"devactivate/internal/fields"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedTransport returns canned responses in order.
type scriptedTransport struct {
	responses []*activation.Response
	requests  []*activation.Request
}

func (t *scriptedTransport) Send(_ context.Context, req *activation.Request) (*activation.Response, error) {
	t.requests = append(t.requests, req)
	if len(t.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	resp := t.responses[0]
	t.responses = t.responses[1:]
	return resp, nil
}

// scriptedPrompter answers prompts from a map and records what was asked.
type scriptedPrompter struct {
	answers map[string]string
	asked   []InputRequest
}

func (p *scriptedPrompter) Prompt(_ context.Context, req InputRequest) (string, error) {
	p.asked = append(p.asked, req)
	v, ok := p.answers[req.Key]
	if !ok {
		return "", fmt.Errorf("unexpected prompt for %q", req.Key)
	}
	return v, nil
}

func recordResponse(record any) *activation.Response {
	resp := activation.NewResponse()
	resp.ActivationRecord = record
	resp.AddHeader("Set-Cookie", "session=abc")
	return resp
}

func inputResponse(keys ...string) *activation.Response {
	resp := activation.NewResponse()
	for _, k := range keys {
		resp.Fields.SetWithMeta(k, "", fields.Meta{RequiresInput: true, Label: "Label " + k})
	}
	resp.Fields.Set("activation-info-base64", "QUJD")
	return resp
}

func TestRun_RecordReady(t *testing.T) {
	transport := &scriptedTransport{responses: []*activation.Response{
		recordResponse(map[string]any{"AccountToken": "token"}),
	}}
	s := New(transport, nil)

	result, err := s.Run(context.Background(), activation.NewRequest(activation.ClientMobileActivation))
	require.NoError(t, err)
	assert.Equal(t, StateRecordReady, result.State)
	assert.NotNil(t, result.Record)
	// headers of the terminal round travel with the result
	assert.Equal(t, "session=abc", result.Headers[0].Value)
}

func TestRun_Acknowledged(t *testing.T) {
	resp := activation.NewResponse()
	resp.IsActivationAck = true
	transport := &scriptedTransport{responses: []*activation.Response{resp}}
	s := New(transport, nil)

	result, err := s.Run(context.Background(), activation.NewRequest(activation.ClientMobileActivation))
	require.NoError(t, err)
	assert.Equal(t, StateAcknowledged, result.State)
}

func TestRun_Errored(t *testing.T) {
	resp := activation.NewResponse()
	resp.HasErrors = true
	resp.Title = "Error Title"
	resp.Description = "Something went wrong."
	transport := &scriptedTransport{responses: []*activation.Response{resp}}
	s := New(transport, nil)

	result, err := s.Run(context.Background(), activation.NewRequest(activation.ClientMobileActivation))
	require.NoError(t, err)
	assert.Equal(t, StateErrored, result.State)
	assert.Equal(t, "Error Title", result.Title)
	assert.Equal(t, "Something went wrong.", result.Description)
}

func TestRun_EmptyFieldSetIsUnknownError(t *testing.T) {
	transport := &scriptedTransport{responses: []*activation.Response{activation.NewResponse()}}
	s := New(transport, nil)

	result, err := s.Run(context.Background(), activation.NewRequest(activation.ClientMobileActivation))
	require.NoError(t, err)
	assert.Equal(t, StateErrored, result.State)
	assert.Equal(t, "", result.Title)
}

func TestRun_InputRoundThenRecord(t *testing.T) {
	transport := &scriptedTransport{responses: []*activation.Response{
		inputResponse("login", "password"),
		recordResponse(map[string]any{"AccountToken": "token"}),
	}}
	prompter := &scriptedPrompter{answers: map[string]string{
		"login":    "user@example.com",
		"password": "secret",
	}}
	s := New(transport, prompter)

	first := activation.NewRequest(activation.ClientMobileActivation)
	first.SetURL("https://example.com/activate")

	result, err := s.Run(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, StateRecordReady, result.State)

	require.Len(t, transport.requests, 2)
	resubmitted := transport.requests[1]
	// client identity and URL carry over to the resubmission
	assert.Equal(t, activation.ClientMobileActivation, resubmitted.ClientType)
	assert.Equal(t, "https://example.com/activate", resubmitted.URL)
	// prompted values replace the empty server fields
	login, _ := resubmitted.Fields.String("login")
	assert.Equal(t, "user@example.com", login)
	// echoed server fields ride along untouched
	b64, _ := resubmitted.Fields.String("activation-info-base64")
	assert.Equal(t, "QUJD", b64)

	require.Len(t, prompter.asked, 2)
	assert.Equal(t, "Label login", prompter.asked[0].Label)
}

func TestRun_SecureFieldFlagReachesPrompter(t *testing.T) {
	resp := activation.NewResponse()
	resp.Fields.SetWithMeta("password", "", fields.Meta{RequiresInput: true, SecureInput: true})
	transport := &scriptedTransport{responses: []*activation.Response{
		resp,
		recordResponse(map[string]any{"t": "v"}),
	}}
	prompter := &scriptedPrompter{answers: map[string]string{"password": "secret"}}
	s := New(transport, prompter)

	_, err := s.Run(context.Background(), activation.NewRequest(activation.ClientMobileActivation))
	require.NoError(t, err)
	require.Len(t, prompter.asked, 1)
	assert.True(t, prompter.asked[0].Secure)
}

func TestRun_StalledFieldSetAborts(t *testing.T) {
	// the server echoes a static field demanding no input; resubmitting it
	// unchanged must not loop forever
	static := func() *activation.Response {
		resp := activation.NewResponse()
		resp.Fields.Set("activation-info-base64", "QUJD")
		return resp
	}
	transport := &scriptedTransport{responses: []*activation.Response{
		static(), static(), static(),
	}}
	s := New(transport, nil)

	first := activation.NewRequest(activation.ClientMobileActivation)
	first.Fields.Set("activation-info-base64", "QUJD")

	_, err := s.Run(context.Background(), first)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStalled))
	assert.LessOrEqual(t, len(transport.requests), 2)
}

func TestRun_RoundLimit(t *testing.T) {
	changing := func(round int) *activation.Response {
		resp := activation.NewResponse()
		resp.Fields.Set("nonce", fmt.Sprintf("%d", round))
		return resp
	}
	var responses []*activation.Response
	for i := 0; i < 10; i++ {
		responses = append(responses, changing(i))
	}
	transport := &scriptedTransport{responses: responses}
	s := New(transport, nil, WithMaxRounds(3))

	_, err := s.Run(context.Background(), activation.NewRequest(activation.ClientMobileActivation))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRoundLimit))
	assert.Len(t, transport.requests, 3)
}

func TestRun_TransportErrorPropagates(t *testing.T) {
	transport := &scriptedTransport{}
	s := New(transport, nil)

	_, err := s.Run(context.Background(), activation.NewRequest(activation.ClientMobileActivation))
	assert.Error(t, err)
}

func TestRun_RequiredInputWithoutPrompterFails(t *testing.T) {
	transport := &scriptedTransport{responses: []*activation.Response{inputResponse("login")}}
	s := New(transport, nil)

	_, err := s.Run(context.Background(), activation.NewRequest(activation.ClientMobileActivation))
	require.Error(t, err)
	assert.True(t, errors.Is(err, activation.ErrInternal))
}

func TestHandshake(t *testing.T) {
	resp := activation.NewResponse()
	resp.Fields.Set("HandshakeResponseMessage", map[string]any{"SessionData": "opaque"})
	transport := &scriptedTransport{responses: []*activation.Response{resp}}
	s := New(transport, nil)

	req := activation.NewHandshakeRequest(activation.ClientMobileActivation)
	req.Fields.Set("HandshakeRequestMessage", map[string]any{"Collection": "blob"})

	fs, err := s.Handshake(context.Background(), req)
	require.NoError(t, err)
	_, ok := fs.Get("HandshakeResponseMessage")
	assert.True(t, ok)

	require.Len(t, transport.requests, 1)
	assert.Equal(t, activation.BodyPlist, transport.requests[0].BodyType)
	assert.Equal(t, activation.DefaultHandshakeURL, transport.requests[0].URL)
}

func TestHandshake_ServerErrorSurfaces(t *testing.T) {
	resp := activation.NewResponse()
	resp.HasErrors = true
	resp.Title = "Handshake Failed"
	transport := &scriptedTransport{responses: []*activation.Response{resp}}
	s := New(transport, nil)

	_, err := s.Handshake(context.Background(), activation.NewHandshakeRequest(activation.ClientMobileActivation))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Handshake Failed")
}
