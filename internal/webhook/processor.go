package webhook

import (
	"context"
	"log/slog"
	"net/http"

	"whoop-sync/internal/config"
	"whoop-sync/internal/database"
	"whoop-sync/internal/metrics"
	"whoop-sync/internal/oauth"
	"whoop-sync/internal/reconcile"
	"whoop-sync/internal/whoop"
)

// Processing outcomes. Only a bad signature is rejected with a non-200:
// everything after verification is acknowledged so WHOOP does not retry
// events we cannot act on.
const (
	StatusInvalidSignature = "invalid_signature"
	StatusIgnored          = "ignored"
	StatusUnknownUser      = "unknown_user"
	StatusTokenError       = "token_error"
	StatusFetchError       = "fetch_error"
	StatusReconcileError   = "reconcile_error"
	StatusUnresolved       = "unresolved"
	StatusReceived         = "received"
)

// Result is what the HTTP handler reports back to the sender
type Result struct {
	HTTPStatus int
	Status     string
}

// Processor runs the synchronous webhook pipeline: verify, parse, route,
// resolve the account, fetch the referenced record, reconcile it
type Processor struct {
	config       *config.Config
	db           *database.DB
	whoopClient  *whoop.Client
	oauthManager *oauth.Manager
	reconciler   *reconcile.Reconciler
	logger       *slog.Logger
}

// NewProcessor creates a new webhook processor
func NewProcessor(cfg *config.Config, db *database.DB, whoopClient *whoop.Client, oauthManager *oauth.Manager, reconciler *reconcile.Reconciler) *Processor {
	return &Processor{
		config:       cfg,
		db:           db,
		whoopClient:  whoopClient,
		oauthManager: oauthManager,
		reconciler:   reconciler,
		logger:       slog.Default(),
	}
}

// Process handles one webhook delivery. The body has already been read;
// headers is the original request header set.
func (p *Processor) Process(ctx context.Context, headers http.Header, body []byte) Result {
	timestamp := headers.Get(TimestampHeader)
	signature := headers.Get(SignatureHeader)

	if !VerifySignature(p.config.WhoopClientSecret, timestamp, body, signature) {
		p.logger.Warn("Rejected webhook with invalid signature")
		metrics.WebhookEventsTotal.WithLabelValues("unknown", StatusInvalidSignature).Inc()
		return Result{HTTPStatus: http.StatusUnauthorized, Status: StatusInvalidSignature}
	}

	event, err := ParseEvent(body)
	if err != nil {
		p.logger.Warn("Ignoring unparseable webhook body", "error", err)
		metrics.WebhookEventsTotal.WithLabelValues("unknown", StatusIgnored).Inc()
		return Result{HTTPStatus: http.StatusOK, Status: StatusIgnored}
	}

	status, procErr := p.handleEvent(ctx, event)

	p.audit(event, body, status, procErr)
	metrics.WebhookEventsTotal.WithLabelValues(event.Type, status).Inc()

	if procErr != nil {
		p.logger.Error("Webhook event not fully processed",
			"type", event.Type, "user_id", event.UserID.String(),
			"resource_id", event.ID.String(), "trace_id", event.TraceID,
			"status", status, "error", procErr)
	} else {
		p.logger.Info("Processed webhook event",
			"type", event.Type, "user_id", event.UserID.String(),
			"resource_id", event.ID.String(), "trace_id", event.TraceID,
			"status", status)
	}

	return Result{HTTPStatus: http.StatusOK, Status: status}
}

func (p *Processor) handleEvent(ctx context.Context, event *Event) (string, error) {
	family := event.Family()
	switch family {
	case "workout", "sleep", "recovery":
	default:
		return StatusIgnored, nil
	}

	athlete, err := p.db.GetAthleteByWhoopUserID(event.UserID.String())
	if err != nil {
		return StatusUnknownUser, err
	}
	if athlete == nil {
		return StatusUnknownUser, nil
	}

	token, err := p.oauthManager.GetValidToken(ctx, athlete)
	if err != nil {
		return StatusTokenError, err
	}

	switch family {
	case "workout":
		raw, err := p.whoopClient.GetWorkout(ctx, token, event.ID.String())
		if err != nil {
			return StatusFetchError, err
		}
		if _, err := p.reconciler.ReconcileWorkout(athlete, raw); err != nil {
			return StatusReconcileError, err
		}

	case "sleep":
		raw, err := p.whoopClient.GetSleep(ctx, token, event.ID.String())
		if err != nil {
			return StatusFetchError, err
		}
		if _, err := p.reconciler.ReconcileSleep(athlete, raw); err != nil {
			return StatusReconcileError, err
		}

	case "recovery":
		return p.handleRecovery(ctx, athlete, token, event)
	}

	return StatusReceived, nil
}

// handleRecovery resolves the ambiguous recovery id down to a cycle id,
// then fetches and reconciles that cycle's recovery
func (p *Processor) handleRecovery(ctx context.Context, athlete *database.Athlete, token string, event *Event) (string, error) {
	ref, err := ResolveRecoveryID(event.ID.String())
	if err != nil {
		return StatusUnresolved, err
	}

	cycleID := ref.CycleID
	if ref.SleepID != nil {
		raw, err := p.whoopClient.GetSleep(ctx, token, *ref.SleepID)
		if err != nil {
			return StatusFetchError, err
		}
		sleep, err := p.reconciler.ReconcileSleep(athlete, raw)
		if err != nil {
			return StatusReconcileError, err
		}
		if sleep.CycleID == nil {
			// Sleep not yet attached to a cycle; nothing to fetch
			return StatusUnresolved, nil
		}
		cycleID = sleep.CycleID
	}

	raw, err := p.whoopClient.GetRecoveryForCycle(ctx, token, *cycleID)
	if err != nil {
		return StatusFetchError, err
	}
	if _, err := p.reconciler.ReconcileRecovery(athlete, raw); err != nil {
		return StatusReconcileError, err
	}

	return StatusReceived, nil
}

// audit appends the event and its outcome to the webhook_events log. Audit
// failures are logged and swallowed; the event itself was already handled.
func (p *Processor) audit(event *Event, body []byte, status string, procErr error) {
	userID, _ := event.UserID.Int64()

	record := &database.WebhookEvent{
		EventType:   event.Type,
		WhoopUserID: userID,
		ResourceID:  event.ID.String(),
		TraceID:     event.TraceID,
		RawJSON:     string(body),
		Status:      status,
	}
	if procErr != nil {
		msg := procErr.Error()
		record.Error = &msg
	}

	if err := p.db.InsertWebhookEvent(record); err != nil {
		p.logger.Error("Failed to record webhook event", "error", err)
	}
}
