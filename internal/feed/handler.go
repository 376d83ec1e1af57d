package feed

import (
	"bufio"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/payflow-sz/payflow/internal/ledger"
)

const heartbeatInterval = 15 * time.Second

// Handler streams account change snapshots over server-sent events.
type Handler struct {
	feed  *Feed
	store ledger.Store
}

// NewHandler builds the streaming handler.
func NewHandler(feed *Feed, store ledger.Store) *Handler {
	return &Handler{feed: feed, store: store}
}

type streamEvent struct {
	Account      accountPayload       `json:"account"`
	Transactions []transactionPayload `json:"transactions"`
}

type accountPayload struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Balance   string `json:"balance"`
	UpdatedAt string `json:"updated_at"`
}

type transactionPayload struct {
	ID          string            `json:"id"`
	PayerID     string            `json:"payer_id"`
	ReceiverID  string            `json:"receiver_id"`
	Amount      string            `json:"amount"`
	Kind        string            `json:"kind"`
	Description string            `json:"description"`
	Status      string            `json:"status"`
	CreatedAt   string            `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Stream subscribes the client to account changes. An initial snapshot is
// sent immediately; afterwards one event follows every committed mutation
// touching the account, coalesced when the client is slow.
func (h *Handler) Stream(c *fiber.Ctx) error {
	// Params are backed by reusable buffers; copy before the stream goroutine.
	accountID := utils.CopyString(c.Params("accountId"))

	acct, err := h.store.Account(c.UserContext(), accountID)
	if err != nil {
		return fiber.NewError(http.StatusNotFound, "account not found")
	}
	initial, err := h.store.Transactions(c.UserContext(), accountID, ledger.FilterAll, "")
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	events := make(chan streamEvent, 8)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		unsubscribe := h.feed.Subscribe(accountID, func(a ledger.Account, txs []ledger.TransactionRecord) {
			offer(events, buildEvent(a, txs))
		})
		defer unsubscribe()

		if err := writeEvent(w, buildEvent(acct, initial)); err != nil {
			return
		}

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case ev := <-events:
				if err := writeEvent(w, ev); err != nil {
					return
				}
			case <-heartbeat.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}

// offer enqueues ev, evicting the oldest queued event when the channel is
// full. A slow client skips intermediate snapshots but always receives the
// newest one, matching the feed's wake-channel coalescing.
func offer(events chan streamEvent, ev streamEvent) {
	for {
		select {
		case events <- ev:
			return
		default:
			select {
			case <-events:
			default:
			}
		}
	}
}

func buildEvent(acct ledger.Account, txs []ledger.TransactionRecord) streamEvent {
	ev := streamEvent{
		Account: accountPayload{
			ID:        acct.ID,
			OwnerID:   acct.OwnerID,
			Balance:   acct.Balance.StringFixed(2),
			UpdatedAt: acct.UpdatedAt.Format(time.RFC3339Nano),
		},
	}
	for _, rec := range txs {
		ev.Transactions = append(ev.Transactions, transactionPayload{
			ID:          rec.ID,
			PayerID:     rec.PayerID,
			ReceiverID:  rec.ReceiverID,
			Amount:      rec.Amount.StringFixed(2),
			Kind:        string(rec.Kind),
			Description: rec.Description,
			Status:      string(rec.Status),
			CreatedAt:   rec.CreatedAt.Format(time.RFC3339Nano),
			Metadata:    rec.Metadata,
		})
	}
	return ev
}

func writeEvent(w *bufio.Writer, ev streamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.WriteString("\n\n"); err != nil {
		return err
	}
	return w.Flush()
}
