package config

import "time"

const (
	defaultAITimeout    = 2 * time.Minute
	defaultMPesaTimeout = 30 * time.Second
)

var defaults = map[string]any{
	"log.level": "info",
	"log.json":  false,

	"database.path":          "shulebot.db",
	"database.history_limit": 20,

	"bot.admin_ids":        []string{},
	"bot.save_retries":     3,
	"bot.save_retry_delay": 500 * time.Millisecond,
	"bot.db_timeout":       5 * time.Second,

	"bot.messages.banned":            "🚫 You are banned from using this service.",
	"bot.messages.not_authorized":    "🚫 You are not authorized to use this command.",
	"bot.messages.pong":              "pong 🏓",
	"bot.messages.ban_usage":         "⚠️ Usage: /ban <id>",
	"bot.messages.unban_usage":       "⚠️ Usage: /unban <id>",
	"bot.messages.banned_fmt":        "🚫 %s has been banned.",
	"bot.messages.unbanned_fmt":      "✅ %s has been unbanned.",
	"bot.messages.history_count_fmt": "🕓 You have %d messages stored.",
	"bot.messages.pay_usage":         "⚠️ Usage: /pay <amount>",
	"bot.messages.invalid_phone_fmt": "⚠️ Invalid phone format: %s (must be 2547XXXXXXXX).",
	"bot.messages.payment_sent":      "📲 Payment request sent. Check your phone to complete.",
	"bot.messages.payment_failed":    "❌ Payment failed.",
	"bot.messages.general_error":     "❌ Sorry, something went wrong.",
	"bot.messages.welcome":           "👋 Hello! Ask me about fees, term dates, transport or anything else about the school.",
	"bot.messages.help":              "ℹ️ Try: fees, fees grade 4, closing date, transport <route> <stop>, /pay <amount>, /history. Anything else goes to the assistant.",
	"bot.messages.transport_fmt":     "🚌 Transport (%s, %s): %s",
	"bot.messages.fee_fmt":           "💰 Fees for %s: %s",
	"bot.messages.fee_summary_fmt":   "💰 Fee structure:\n%s",
	"bot.messages.activity_fmt":      "📅 %s: %s",
	"bot.messages.not_set":           "Not set",

	"telegram.enabled": false,
	"telegram.token":   "",

	"http.addr":             ":8080",
	"http.read_timeout":     15 * time.Second,
	"http.write_timeout":    30 * time.Second,
	"http.shutdown_timeout": 10 * time.Second,
	"http.admin_token":      "",
	"http.webhook_token":    "",

	"ai.provider":    "openai",
	"ai.api_key":     "",
	"ai.base_url":    "",
	"ai.model":       "gpt-4o",
	"ai.temperature": 0.7,
	"ai.timeout":     defaultAITimeout,
	"ai.max_retries": 2,
	"ai.retry_delay": 2 * time.Second,

	"mpesa.enabled":           true,
	"mpesa.environment":       "sandbox",
	"mpesa.consumer_key":      "",
	"mpesa.consumer_secret":   "",
	"mpesa.shortcode":         "",
	"mpesa.passkey":           "",
	"mpesa.callback_url":      "",
	"mpesa.account_reference": "School Fees",
	"mpesa.transaction_desc":  "Payment",
	"mpesa.timeout":           defaultMPesaTimeout,
	"mpesa.register_url":      "",
	"mpesa.stale_after":       15 * time.Minute,

	"knowledge.path": "school.yaml",

	"scheduler.tasks.sql_maintenance.enabled":  true,
	"scheduler.tasks.sql_maintenance.schedule": "0 0 3 * * *",
	"scheduler.tasks.stale_payments.enabled":   true,
	"scheduler.tasks.stale_payments.schedule":  "0 */30 * * * *",
}
