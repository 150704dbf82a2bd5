package ws

import (
	"context"
	"log"
	"time"

	"github.com/whisper/reportdesk/internal/evidence"
	"github.com/whisper/reportdesk/internal/intake"
	"github.com/whisper/reportdesk/internal/metrics"
	"github.com/whisper/reportdesk/internal/protocol"
	"github.com/whisper/reportdesk/internal/ratelimit"
)

// ResolveDestination returns a handle for the moderation destination, or an
// error when none is configured. It is called per report, before any
// private-channel interaction.
type ResolveDestination func() (intake.Destination, error)

// Gateway is the entry point for the report workflow. It validates
// preconditions (cooldown, moderation destination, private channel), wires
// the intake session together, and surfaces user-visible outcomes. Any
// unanticipated failure inside a session is caught here so the reporter
// only ever sees a generic failure notice.
type Gateway struct {
	conns      *ConnectionManager
	limiter    *ratelimit.Limiter
	resolve    ResolveDestination
	sessionCfg intake.Config
}

// NewGateway creates a Gateway over the given connection registry.
func NewGateway(conns *ConnectionManager, limiter *ratelimit.Limiter, resolve ResolveDestination, sessionCfg intake.Config) *Gateway {
	return &Gateway{
		conns:      conns,
		limiter:    limiter,
		resolve:    resolve,
		sessionCfg: sessionCfg,
	}
}

// Register wires the gateway's handlers into a dispatcher.
func (g *Gateway) Register(d *MessageDispatcher) {
	d.Register(protocol.TypeReport, g.handleReport)
	d.Register(protocol.TypeDMMessage, g.handleDM)
}

// handleReport processes a report command: cooldown check, destination
// resolution, acknowledgement, then the collection session in its own
// goroutine so the connection's read loop is never blocked.
func (g *Gateway) handleReport(conn *Connection, msg interface{}) {
	rm, ok := msg.(protocol.ReportMsg)
	if !ok {
		return
	}
	ctx := context.Background()

	if rm.Text == "" {
		g.sendError(conn, "missing_text", "report text is required")
		return
	}

	// Cooldown is enforced here, at the command layer; the session itself
	// carries no rate policy. A nil limiter disables the cooldown.
	allowed := true
	if g.limiter != nil {
		allowed, _ = g.limiter.Allow(ctx, conn.ID, ratelimit.RuleReport)
	}
	if !allowed {
		g.send(conn, protocol.TypeRateLimited, protocol.RateLimitedMsg{
			RetryAfter: int(ratelimit.RuleReport.Window.Seconds()),
		})
		return
	}

	dest, err := g.resolve()
	if err != nil {
		log.Printf("[gateway] destination resolve failed reporter=%s: %v", conn.ID, err)
		g.notice(conn, "Unable to process report: moderation channel not found. Please notify an admin.")
		return
	}

	g.notice(conn, "I'll message you privately to collect any images for your report.")

	req := intake.Request{
		ReporterID:   conn.ID,
		Text:         rm.Text,
		TargetUserID: rm.TargetUserID,
	}
	go g.runSession(req, dest)
}

// handleDM routes a private-channel message from the reporter into the
// connection's inbox for the active session to consume.
func (g *Gateway) handleDM(conn *Connection, msg interface{}) {
	dm, ok := msg.(protocol.DMMessage)
	if !ok {
		return
	}

	items := make([]evidence.Item, len(dm.Attachments))
	for i, a := range dm.Attachments {
		items[i] = evidence.Item{Filename: a.Filename, Size: a.Size, Ref: a.URL}
	}

	if !conn.deliverDM(&intake.Message{Text: dm.Text, Attachments: items}) {
		log.Printf("[gateway] dropped dm message session=%s (no active session)", conn.ID)
	}
}

// Open implements intake.ChannelOpener over the live connection registry.
// It returns intake.ErrPermissionDenied when the reporter's connection is
// gone, mirroring a platform that refuses the private channel.
func (g *Gateway) Open(_ context.Context, reporterID string) (intake.PrivateChannel, error) {
	conn := g.conns.Get(reporterID)
	if conn == nil {
		return nil, intake.ErrPermissionDenied
	}
	select {
	case <-conn.closed:
		return nil, intake.ErrPermissionDenied
	default:
	}

	// A fresh session must only see traffic sent after its prompt.
	conn.drainInbox()
	return &dmChannel{conn: conn}, nil
}

// runSession executes one collection session end to end. It is the error
// boundary: failures are logged with the reporter's identity and surfaced
// as a single generic notice, never as raw error detail.
func (g *Gateway) runSession(req intake.Request, dest intake.Destination) {
	ctx := context.Background()
	start := time.Now()

	metrics.ActiveSessions.Inc()
	defer func() {
		metrics.ActiveSessions.Dec()
		metrics.SessionDuration.Observe(time.Since(start).Seconds())
	}()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[gateway] panic in report session reporter=%s: %v", req.ReporterID, r)
			metrics.SessionsClosed.WithLabelValues("failed").Inc()
			g.failNotice(req.ReporterID)
		}
	}()

	ch, err := g.Open(ctx, req.ReporterID)
	if err != nil {
		// The reporter is unreachable; there is nowhere to send the
		// permission notice either.
		log.Printf("[gateway] private channel refused reporter=%s: %v", req.ReporterID, err)
		metrics.SessionsClosed.WithLabelValues("failed").Inc()
		return
	}

	s := intake.NewSession(req, g.sessionCfg)
	rec, err := s.Run(ctx, ch, dest)
	if err != nil {
		log.Printf("[gateway] report session failed reporter=%s: %v", req.ReporterID, err)
		metrics.SessionsClosed.WithLabelValues("failed").Inc()
		g.failNotice(req.ReporterID)
		return
	}

	metrics.SessionsClosed.WithLabelValues(s.Outcome()).Inc()
	log.Printf("[gateway] report delivered reporter=%s record=%s evidence=%d outcome=%s",
		req.ReporterID, rec.ID, len(rec.Evidence), s.Outcome())
}

// failNotice sends the generic failure message, best effort.
func (g *Gateway) failNotice(reporterID string) {
	conn := g.conns.Get(reporterID)
	if conn == nil {
		return
	}
	g.notice(conn, "An error occurred while processing your report. Please try again later.")
}

// notice sends a notice frame to the reporter, logging on failure.
func (g *Gateway) notice(conn *Connection, text string) {
	g.send(conn, protocol.TypeNotice, protocol.NoticeMsg{Text: text})
}

func (g *Gateway) send(conn *Connection, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[gateway] failed to build %s message session=%s: %v", msgType, conn.ID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("[gateway] failed to send %s message session=%s: %v", msgType, conn.ID, err)
	}
}

func (g *Gateway) sendError(conn *Connection, code string, message string) {
	g.send(conn, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}
