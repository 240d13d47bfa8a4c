package controlplane

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	fullSyncID    string
	fullSyncErr   error
	cancelled     []string
	progress      map[string]interface{}
	listRecent    []map[string]interface{}
	provisioned   []string
	startedSched  bool
}

func (f *fakeDispatcher) FullSyncNow(ctx context.Context) (string, error) {
	return f.fullSyncID, f.fullSyncErr
}

func (f *fakeDispatcher) Reconcile(ctx context.Context, project, action string, dryRun bool) (map[string]interface{}, error) {
	return map[string]interface{}{"project": project, "action": action, "dry_run": dryRun}, nil
}

func (f *fakeDispatcher) StartScheduled(ctx context.Context) error {
	f.startedSched = true
	return nil
}

func (f *fakeDispatcher) StopScheduled(ctx context.Context) error { return nil }

func (f *fakeDispatcher) Progress(ctx context.Context, workflowID string) (map[string]interface{}, error) {
	if f.progress == nil {
		return nil, errors.New("not found")
	}
	return f.progress, nil
}

func (f *fakeDispatcher) ListRecent(ctx context.Context) ([]map[string]interface{}, error) {
	return f.listRecent, nil
}

func (f *fakeDispatcher) ListFailed(ctx context.Context) ([]map[string]interface{}, error) {
	return nil, nil
}

func (f *fakeDispatcher) Cancel(ctx context.Context, workflowID string) error {
	f.cancelled = append(f.cancelled, workflowID)
	return nil
}

func (f *fakeDispatcher) ProvisionAgents(ctx context.Context, project, agentID string) error {
	f.provisioned = append(f.provisioned, project+"/"+agentID)
	return nil
}

func newTestServer(t *testing.T, d Dispatcher) string {
	t.Helper()
	srv := &Server{Dispatcher: d}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestFullSyncNowRoundTrip(t *testing.T) {
	d := &fakeDispatcher{fullSyncID: "wf-1"}
	addr := newTestServer(t, d)

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Send(context.Background(), NewMessage(CmdFullSyncNow))
	require.NoError(t, err)
	assert.Equal(t, "wf-1", resp.Payload["workflow_id"])
}

func TestFullSyncNowErrorIsSurfaced(t *testing.T) {
	d := &fakeDispatcher{fullSyncErr: errors.New("runtime busy")}
	addr := newTestServer(t, d)

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send(context.Background(), NewMessage(CmdFullSyncNow))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime busy")
}

func TestCancelDispatchesToCorrectWorkflow(t *testing.T) {
	d := &fakeDispatcher{}
	addr := newTestServer(t, d)

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	req := NewMessage(CmdCancel)
	req.Payload["workflow_id"] = "wf-42"
	_, err = c.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-42"}, d.cancelled)
}

func TestProgressNotFoundSurfacesAsError(t *testing.T) {
	d := &fakeDispatcher{}
	addr := newTestServer(t, d)

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	req := NewMessage(CmdProgress)
	req.Payload["workflow_id"] = "missing"
	_, err = c.Send(context.Background(), req)
	require.Error(t, err)
}

func TestUnknownCommandReturnsError(t *testing.T) {
	d := &fakeDispatcher{}
	addr := newTestServer(t, d)

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send(context.Background(), NewMessage(MessageType("nonsense")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestProvisionAgentsBestEffort(t *testing.T) {
	d := &fakeDispatcher{}
	addr := newTestServer(t, d)

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	req := NewMessage(CmdProvisionAgents)
	req.Payload["project"] = "ACME"
	req.Payload["agent_id"] = "agent-1"
	_, err = c.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME/agent-1"}, d.provisioned)
}

func TestDialUnreachableDaemonReturnsError(t *testing.T) {
	_, err := Dial("ws://127.0.0.1:1/v1/control")
	require.Error(t, err)
}
