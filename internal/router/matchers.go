package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/edgard/shulebot/internal/ai"
	"github.com/edgard/shulebot/internal/database"
	"github.com/edgard/shulebot/internal/mpesa"
)

// outcome is a claimed message's reply. record is false only for replies
// that must leave no trace in the history.
type outcome struct {
	reply  string
	record bool
}

func reply(text string) (outcome, bool) {
	return outcome{reply: text, record: true}, true
}

func pass() (outcome, bool) {
	return outcome{}, false
}

type matcher struct {
	name  string
	match func(ctx context.Context, t *turn) (outcome, bool)
}

// defaultMatchers lists the matchers in precedence order.
func (r *Router) defaultMatchers() []matcher {
	return []matcher{
		{name: "ban", match: r.matchBan},
		{name: "command", match: r.matchCommand},
		{name: "pay", match: r.matchPay},
		{name: "transport", match: r.matchTransport},
		{name: "faq", match: r.matchFAQ},
		{name: "fees", match: r.matchFees},
		{name: "activities", match: r.matchActivity},
		{name: "fallback", match: r.matchFallback},
	}
}

// command returns the lowercased first word with any Telegram @botname
// suffix removed.
func (t *turn) command() string {
	if len(t.fields) == 0 {
		return ""
	}
	cmd, _, _ := strings.Cut(strings.ToLower(t.fields[0]), "@")
	return cmd
}

// arg returns the i-th word after the command, keeping its case.
func (t *turn) arg(i int) string {
	if len(t.fields) <= i {
		return ""
	}
	return t.fields[i]
}

func (r *Router) matchBan(ctx context.Context, t *turn) (outcome, bool) {
	dbCtx, cancel := r.dbContext(ctx)
	defer cancel()

	banned, err := r.deps.Store.IsBanned(dbCtx, t.userID)
	if err != nil {
		r.log.ErrorContext(ctx, "Ban lookup failed, treating user as not banned", "error", err, "user_id", t.userID)
		return pass()
	}
	if !banned {
		return pass()
	}
	r.log.InfoContext(ctx, "Rejected message from banned user", "user_id", t.userID)
	return outcome{reply: r.msgs.Banned}, true
}

func (r *Router) matchCommand(ctx context.Context, t *turn) (outcome, bool) {
	if t.lower == "ping" {
		return reply(r.msgs.Pong)
	}

	switch t.command() {
	case "/ban":
		return r.setBan(ctx, t, true)
	case "/unban":
		return r.setBan(ctx, t, false)
	case "/history":
		dbCtx, cancel := r.dbContext(ctx)
		defer cancel()
		count, err := r.deps.Store.CountEntries(dbCtx, t.userID)
		if err != nil {
			r.log.ErrorContext(ctx, "Failed to count history", "error", err, "user_id", t.userID)
			count = 0
		}
		return reply(fmt.Sprintf(r.msgs.HistoryCountFmt, count))
	}
	return pass()
}

func (r *Router) setBan(ctx context.Context, t *turn, ban bool) (outcome, bool) {
	if !r.settings.Bot.IsAdmin(t.userID) {
		r.log.WarnContext(ctx, "Unauthorized moderation attempt", "user_id", t.userID, "command", t.command())
		return reply(r.msgs.NotAuthorized)
	}

	target := t.arg(1)
	if target == "" {
		if ban {
			return reply(r.msgs.BanUsage)
		}
		return reply(r.msgs.UnbanUsage)
	}

	dbCtx, cancel := r.dbContext(ctx)
	defer cancel()

	var err error
	if ban {
		err = r.deps.Store.Ban(dbCtx, target)
	} else {
		err = r.deps.Store.Unban(dbCtx, target)
	}
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to update ban list", "error", err, "target", target, "ban", ban)
		return reply(r.msgs.GeneralError)
	}

	r.log.InfoContext(ctx, "Ban list updated", "target", target, "ban", ban, "by", t.userID)
	if ban {
		return reply(fmt.Sprintf(r.msgs.BannedFmt, target))
	}
	return reply(fmt.Sprintf(r.msgs.UnbannedFmt, target))
}

// phoneFromUserID drops the transport suffix, e.g. "254712345678@c.us".
func phoneFromUserID(userID string) string {
	phone, _, _ := strings.Cut(userID, "@")
	return phone
}

func (r *Router) matchPay(ctx context.Context, t *turn) (outcome, bool) {
	if t.command() != "/pay" {
		return pass()
	}

	amount := t.arg(1)
	if amount == "" {
		return reply(r.msgs.PayUsage)
	}
	if _, err := mpesa.ParseAmount(amount); err != nil {
		return reply(r.msgs.PayUsage)
	}

	phone := phoneFromUserID(t.userID)
	if !mpesa.ValidPhone(phone) {
		return reply(fmt.Sprintf(r.msgs.InvalidPhoneFmt, phone))
	}

	log := r.log.With("user_id", t.userID, "amount", amount)
	if r.deps.Gateway == nil {
		log.ErrorContext(ctx, "Payment requested but no gateway is configured")
		return reply(r.msgs.PaymentFailed)
	}

	gwCtx, cancel := context.WithTimeout(ctx, r.settings.GatewayTimeout)
	defer cancel()

	resp, err := r.deps.Gateway.Initiate(gwCtx, phone, amount, "")
	if err != nil {
		log.ErrorContext(ctx, "STK push failed", "error", err)
		return reply(r.msgs.PaymentFailed)
	}
	if !resp.Accepted() {
		log.WarnContext(ctx, "STK push rejected",
			"response_code", resp.ResponseCode,
			"response_description", resp.ResponseDescription)
		return reply(r.msgs.PaymentFailed)
	}

	reg := mpesa.Registration{
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		Phone:             phone,
		Amount:            amount,
	}
	r.recordInitiation(ctx, reg, resp)

	if err := r.deps.Gateway.RegisterInit(gwCtx, reg); err != nil {
		log.WarnContext(ctx, "Remote register-init failed", "error", err, "checkout_request_id", reg.CheckoutRequestID)
	}
	return reply(r.msgs.PaymentSent)
}

func (r *Router) recordInitiation(ctx context.Context, reg mpesa.Registration, resp *mpesa.InitiateResponse) {
	if r.deps.Payments == nil {
		r.log.WarnContext(ctx, "No payment ledger configured, initiation not recorded", "checkout_request_id", reg.CheckoutRequestID)
		return
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		r.log.WarnContext(ctx, "Failed to encode initiation response", "error", err)
	}

	dbCtx, cancel := r.dbContext(ctx)
	defer cancel()
	if _, err := r.deps.Payments.RecordInitiation(dbCtx, reg, string(raw)); err != nil {
		r.log.ErrorContext(ctx, "Failed to record initiation", "error", err, "checkout_request_id", reg.CheckoutRequestID)
	}
}

func (r *Router) matchTransport(ctx context.Context, t *turn) (outcome, bool) {
	fare, stop, ok := r.loadKnowledge(ctx, t).MatchTransport(t.text)
	if !ok {
		return pass()
	}
	return reply(fmt.Sprintf(r.msgs.TransportFmt, fare.Route, stop, fare.Amount))
}

func (r *Router) matchFAQ(ctx context.Context, t *turn) (outcome, bool) {
	faq, ok := r.loadKnowledge(ctx, t).MatchFAQ(t.text)
	if !ok {
		return pass()
	}
	return reply(faq.Answer)
}

func (r *Router) matchFees(ctx context.Context, t *turn) (outcome, bool) {
	kb := r.loadKnowledge(ctx, t)
	if len(kb.Fees) == 0 {
		return pass()
	}
	m, ok := kb.LookupFee(t.text)
	if !ok {
		return pass()
	}
	if m.Summary {
		return reply(fmt.Sprintf(r.msgs.FeeSummaryFmt, kb.FeeSummary()))
	}
	return reply(fmt.Sprintf(r.msgs.FeeFmt, m.Fee.Class, m.Fee.Amount))
}

func (r *Router) matchActivity(ctx context.Context, t *turn) (outcome, bool) {
	activity, date, ok := r.loadKnowledge(ctx, t).MatchActivity(t.text)
	if !ok {
		return pass()
	}
	if date == "" {
		date = r.msgs.NotSet
	}
	return reply(fmt.Sprintf(r.msgs.ActivityFmt, activity.Label, date))
}

// matchFallback asks the completion backend, giving it the system prompt,
// the recent history and the new message. It always claims the message.
func (r *Router) matchFallback(ctx context.Context, t *turn) (outcome, bool) {
	if r.deps.Completer == nil {
		r.log.ErrorContext(ctx, "No completion backend configured")
		return reply(r.msgs.GeneralError)
	}

	messages := []ai.Message{{Role: ai.RoleSystem, Content: r.loadKnowledge(ctx, t).SystemPrompt()}}
	for _, e := range r.history(ctx, t.userID) {
		role := ai.RoleUser
		if e.Direction == database.DirectionOutbound {
			role = ai.RoleAssistant
		}
		messages = append(messages, ai.Message{Role: role, Content: e.Text})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: t.text})

	aiCtx, cancel := context.WithTimeout(ctx, r.settings.AITimeout)
	defer cancel()

	text, err := r.deps.Completer.Complete(aiCtx, messages)
	if err != nil {
		r.log.ErrorContext(ctx, "Completion failed", "error", err, "user_id", t.userID, "history_size", len(messages)-2)
		return reply(r.msgs.GeneralError)
	}
	if text = r.plain.Plaintext(text); text == "" {
		r.log.WarnContext(ctx, "Completion was empty after sanitizing", "user_id", t.userID)
		return reply(r.msgs.GeneralError)
	}
	return reply(text)
}

func (r *Router) history(ctx context.Context, userID string) []database.ConversationEntry {
	dbCtx, cancel := r.dbContext(ctx)
	defer cancel()

	entries, err := r.deps.Store.GetHistory(dbCtx, userID, r.settings.HistoryLimit)
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to load history, continuing without it", "error", err, "user_id", userID)
		return nil
	}
	return entries
}
