package controlplane

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Dispatcher is what the daemon implements to answer every control-plane
// command spec §6 names. Methods return plain data (never a *Message);
// Server does the envelope framing.
type Dispatcher interface {
	FullSyncNow(ctx context.Context) (workflowID string, err error)
	Reconcile(ctx context.Context, project, action string, dryRun bool) (map[string]interface{}, error)
	StartScheduled(ctx context.Context) error
	StopScheduled(ctx context.Context) error
	Progress(ctx context.Context, workflowID string) (map[string]interface{}, error)
	ListRecent(ctx context.Context) ([]map[string]interface{}, error)
	ListFailed(ctx context.Context) ([]map[string]interface{}, error)
	Cancel(ctx context.Context, workflowID string) error
	ProvisionAgents(ctx context.Context, project, agentID string) error
}

type handlerFunc func(ctx context.Context, d Dispatcher, req *Message) (*Message, error)

var handlers = map[MessageType]handlerFunc{
	CmdFullSyncNow: func(ctx context.Context, d Dispatcher, req *Message) (*Message, error) {
		id, err := d.FullSyncNow(ctx)
		if err != nil {
			return nil, err
		}
		return okMessage(req, map[string]interface{}{"workflow_id": id}), nil
	},
	CmdReconcile: func(ctx context.Context, d Dispatcher, req *Message) (*Message, error) {
		project, _ := req.Payload["project"].(string)
		action, _ := req.Payload["action"].(string)
		dryRun, _ := req.Payload["dry_run"].(bool)
		result, err := d.Reconcile(ctx, project, action, dryRun)
		if err != nil {
			return nil, err
		}
		return okMessage(req, result), nil
	},
	CmdStartScheduled: func(ctx context.Context, d Dispatcher, req *Message) (*Message, error) {
		if err := d.StartScheduled(ctx); err != nil {
			return nil, err
		}
		return okMessage(req, nil), nil
	},
	CmdStopScheduled: func(ctx context.Context, d Dispatcher, req *Message) (*Message, error) {
		if err := d.StopScheduled(ctx); err != nil {
			return nil, err
		}
		return okMessage(req, nil), nil
	},
	CmdProgress: func(ctx context.Context, d Dispatcher, req *Message) (*Message, error) {
		workflowID, _ := req.Payload["workflow_id"].(string)
		progress, err := d.Progress(ctx, workflowID)
		if err != nil {
			return nil, err
		}
		return okMessage(req, progress), nil
	},
	CmdListRecent: func(ctx context.Context, d Dispatcher, req *Message) (*Message, error) {
		list, err := d.ListRecent(ctx)
		if err != nil {
			return nil, err
		}
		return okMessage(req, map[string]interface{}{"workflows": list}), nil
	},
	CmdListFailed: func(ctx context.Context, d Dispatcher, req *Message) (*Message, error) {
		list, err := d.ListFailed(ctx)
		if err != nil {
			return nil, err
		}
		return okMessage(req, map[string]interface{}{"workflows": list}), nil
	},
	CmdCancel: func(ctx context.Context, d Dispatcher, req *Message) (*Message, error) {
		workflowID, _ := req.Payload["workflow_id"].(string)
		if err := d.Cancel(ctx, workflowID); err != nil {
			return nil, err
		}
		return okMessage(req, nil), nil
	},
	CmdProvisionAgents: func(ctx context.Context, d Dispatcher, req *Message) (*Message, error) {
		project, _ := req.Payload["project"].(string)
		agentID, _ := req.Payload["agent_id"].(string)
		if err := d.ProvisionAgents(ctx, project, agentID); err != nil {
			return nil, err
		}
		return okMessage(req, nil), nil
	},
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes Dispatcher over a websocket endpoint: one connection
// per CLI invocation, one response per request message, until the
// client disconnects.
type Server struct {
	Dispatcher Dispatcher
	Logger     *logrus.Entry

	mu     sync.Mutex
	served int
}

func (s *Server) logger() *logrus.Entry {
	if s.Logger == nil {
		return logrus.NewEntry(logrus.StandardLogger()).WithField("component", "controlplane")
	}
	return s.Logger
}

// ServeHTTP upgrades the request to a websocket and serves every
// request message read off it until the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger().WithError(err).Warn("control plane: websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.served++
	s.mu.Unlock()

	for {
		var req Message
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		resp := s.handle(r.Context(), &req)
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, req *Message) *Message {
	fn, ok := handlers[req.Type]
	if !ok {
		return errorMessage(req, fmt.Errorf("control plane: unknown command %q", req.Type))
	}
	resp, err := fn(ctx, s.Dispatcher, req)
	if err != nil {
		return errorMessage(req, err)
	}
	return resp
}
