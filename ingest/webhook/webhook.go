// Package webhook implements the Tracker Webhook ingester (spec §4.4):
// an echo HTTP handler that verifies, de-duplicates, and fans a mixed
// Tracker change batch out into per-item child sync workflows.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/engine"
	"vibesync.dev/syncorch/ingest/dedup"
	"vibesync.dev/syncorch/model"
	"vibesync.dev/syncorch/runtime"
)

// interItemDelay rate-limits child-workflow dispatch between webhook
// items (spec §4.4).
const interItemDelay = 500 * time.Millisecond

// signatureHeader is the header the Tracker webhook sender signs the
// raw request body into, HMAC-SHA256 hex-encoded.
const signatureHeader = "X-Tracker-Signature"

// dedupTTL bounds how long a delivered change is remembered for
// redelivery suppression.
const dedupTTL = 10 * time.Minute

// Change is one entry of the mixed webhook change batch. Only
// issue-class changes are processed; everything else is filtered out.
type Change struct {
	Class       string `json:"class"` // e.g. "issue", "comment", "attachment"
	Identifier  string `json:"identifier"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	ModifiedOn  int64  `json:"modifiedOn"` // unix seconds
}

// batchKey is the de-duplication identity spec §4.4 names:
// (identifier || id).
func (c Change) batchKey() string {
	if c.Identifier != "" {
		return c.Identifier
	}
	return c.ID
}

// Handler wires the webhook HTTP surface and its processing pipeline.
type Handler struct {
	Secret  string // HMAC signing secret; empty disables verification
	Dedup   dedup.Cache
	RepoLog adapters.RepoLogAdapter
	Runner  *runtime.Runner
	SyncFn  runtime.WorkflowFunc
	Logger  *logrus.Entry
}

func (h *Handler) logger() *logrus.Entry {
	if h.Logger != nil {
		return h.Logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// Register mounts POST /webhooks/tracker on e.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/webhooks/tracker", h.handleWebhook)
}

func (h *Handler) handleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}

	if h.Secret != "" {
		sig := c.Request().Header.Get(signatureHeader)
		if !verifySignature(h.Secret, body, sig) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
		}
	}

	var changes []Change
	if err := json.Unmarshal(body, &changes); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	if err := h.ProcessBatch(c.Request().Context(), changes); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

// verifySignature reports whether sig is the lowercase-hex HMAC-SHA256
// of body keyed by secret, using a constant-time comparison.
func verifySignature(secret string, body []byte, sig string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

// ProcessBatch implements spec §4.4's Tracker Webhook ingester body:
// filter to issue-class changes, de-duplicate by (identifier||id)
// keeping the newest modifiedOn, then per surviving change resolve the
// repoPath (non-fatal) and spawn a child sync workflow; sleep 500ms
// between items.
func (h *Handler) ProcessBatch(ctx context.Context, changes []Change) error {
	log := h.logger()

	issues := make([]Change, 0, len(changes))
	for _, c := range changes {
		if c.Class == "issue" {
			issues = append(issues, c)
		}
	}

	deduped := dedupeNewest(issues)

	for i, c := range deduped {
		if err := ctx.Err(); err != nil {
			return err
		}

		if h.Dedup != nil {
			first, err := h.Dedup.SeenOrMark(ctx, c.batchKey(), dedupTTL)
			if err == nil && !first {
				continue
			}
		}

		if err := h.processOne(ctx, c); err != nil {
			log.WithError(err).WithField("identifier", c.Identifier).Warn("webhook ingester: item failed")
		}

		if i < len(deduped)-1 {
			if err := runtime.Sleep(ctx, interItemDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Handler) processOne(ctx context.Context, c Change) error {
	project := model.ProjectCodeOf(c.Identifier)

	var repoPath string
	if h.RepoLog != nil {
		// Non-fatal on failure (spec §4.4): proceed without RepoLog.
		if p, err := h.RepoLog.ResolveRepoPath(ctx, project); err == nil {
			repoPath = p
		}
	}

	item := model.WorkItem{
		Title:       c.Title,
		Description: c.Description,
		Status:      c.Status,
		ModifiedAt:  time.Unix(c.ModifiedOn, 0).UTC(),
	}
	if id, err := model.NewCanonicalID(c.Identifier); err == nil {
		item.ID = id
	}

	workflowID := "tracker-webhook-sync-" + c.Identifier
	_, err := h.Runner.RunChild(ctx, runtime.StartOptions{WorkflowID: workflowID}, h.SyncFn, engine.Input{
		Source:   model.SystemTracker,
		Item:     item,
		Project:  project,
		RepoPath: repoPath,
	})
	return err
}

// dedupeNewest keeps, for each batchKey, only the Change with the
// largest ModifiedOn, preserving the batch's original relative order.
func dedupeNewest(changes []Change) []Change {
	best := make(map[string]Change, len(changes))
	order := make([]string, 0, len(changes))
	for _, c := range changes {
		key := c.batchKey()
		cur, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = c
			continue
		}
		if c.ModifiedOn > cur.ModifiedOn {
			best[key] = c
		}
	}

	out := make([]Change, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

// SyncWorkflow adapts engine.Engine.Sync into a runtime.WorkflowFunc
// suitable for Handler.SyncFn. cmd/syncorchd wires its own equivalent
// adapter (syncOneItemWorkflow) instead.
func SyncWorkflow(e *engine.Engine) runtime.WorkflowFunc {
	return func(ctx context.Context, input any) (any, error) {
		in, ok := input.(engine.Input)
		if !ok {
			return nil, fmt.Errorf("webhook: unexpected child workflow input %T", input)
		}
		return e.Sync(ctx, in)
	}
}
