package tls

import (
	"time"

	"go.uber.org/zap"
)

// defaultTicketLifetime is the lifetime stamped on server-issued
// NewSessionTicket messages; RFC 8446 §4.6.1 caps it at seven days.
const defaultTicketLifetime = 2 * 3600 // seconds

// issueSessionTickets sends the post-handshake NewSessionTicket flight a
// TLS 1.3 server owes a fresh (non-resumed handshakes included) client,
// and records the resumption state in the TicketStore so the ticket can
// be redeemed later.
func (c *Conn) issueSessionTickets() error {
	if c.config.SessionTicketsDisabled || c.config.TicketStore == nil {
		return nil
	}
	nt, err := c.hs.TLS13.IssueTicket(c.layer, c.config.TicketStore, defaultTicketLifetime, c.config.rand(), c.config.now())
	if err != nil {
		return err
	}
	c.logger.Debug("session ticket issued", zap.Int("ticket_len", len(nt.Ticket)))
	return nil
}

// storeReceivedTicket records a client-received NewSessionTicket both in
// the configured TicketStore and as the connection's latest ticket for
// SessionForResumption.
func (c *Conn) storeReceivedTicket(body []byte) error {
	nt, err := c.hs.TLS13.ProcessNewSessionTicket(body, c.config.now(), c.hs.ServerName, c.hs.ALPN)
	if err != nil {
		return err
	}
	c.latestTicket = nt
	if c.config.TicketStore != nil && !c.config.SessionTicketsDisabled {
		c.config.TicketStore.Insert(nt.Ticket, nt)
	}
	c.logger.Debug("session ticket received", zap.Int("lifetime_s", int(nt.Lifetime)))
	return nil
}

// SessionForResumption returns the most recent resumption state this
// connection produced: a TLS 1.3 NewSessionTicket on the client, nil
// otherwise. Offer it to a later connection via
// Config.ResumptionTickets.
func (c *Conn) SessionForResumption() *NewSessionTicket {
	return c.latestTicket
}

// TicketExpired reports whether a stored ticket is past its lifetime at
// the given instant.
func TicketExpired(t *NewSessionTicket, now time.Time) bool {
	return now.After(t.ReceivedAt.Add(time.Duration(t.Lifetime) * time.Second))
}
