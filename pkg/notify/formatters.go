// Package notify formats ProbeEvents into the chat and email payloads the
// dispatcher hands to its transport senders.
package notify

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/fleetmon/fleetmon/pkg/bus"
)

var icons = map[string]string{
	"green":  "✅",
	"orange": "🟠",
	"red":    "❌",
}

// ChatMessage renders the HTML-formatted Telegram message for one event.
func ChatMessage(event bus.ProbeEvent) string {
	c := buildContext(event)

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> (%s)\n", html.EscapeString(c.name), html.EscapeString(c.url))
	fmt.Fprintf(&b, "%s Светофор: %s\n\n", c.icon, c.trafficLight)
	fmt.Fprintf(&b, "🕒 Время: %s\n", c.timestamp)
	fmt.Fprintf(&b, "📡 Код ответа: %s\n", c.httpStatus)
	fmt.Fprintf(&b, "⚡ Задержка HTTP: %s мс\n", c.latencyMs)
	fmt.Fprintf(&b, "📶 Пинг: %s мс\n", c.pingMs)
	fmt.Fprintf(&b, "🔐 SSL дней осталось: %s\n", c.sslDaysLeft)
	fmt.Fprintf(&b, "🌐 DNS резолвинг: %s\n", c.dnsResolved)
	fmt.Fprintf(&b, "↪️ Редиректы: %s\n", c.redirects)
	fmt.Fprintf(&b, "❗ Ошибки (последние проверки): %s\n", c.errorsLast)

	if c.explanation != "" {
		fmt.Fprintf(&b, "\n💬 <b>Вердикт LLM</b>\n%s", html.EscapeString(c.explanation))
	}

	return b.String()
}

// EmailSubject renders the notification's subject line.
func EmailSubject(event bus.ProbeEvent) string {
	c := buildContext(event)
	return fmt.Sprintf("[%s] %s — статус обновлён", c.trafficLight, c.name)
}

// EmailBodies renders the plain-text and HTML-table alternative bodies.
func EmailBodies(event bus.ProbeEvent) (plain, htmlBody string) {
	c := buildContext(event)

	lines := []string{
		fmt.Sprintf("%s (%s)", c.name, c.url),
		fmt.Sprintf("Светофор: %s", c.trafficLight),
		"",
		fmt.Sprintf("Время: %s", c.timestamp),
		fmt.Sprintf("Код ответа: %s", c.httpStatus),
		fmt.Sprintf("Задержка HTTP: %s мс", c.latencyMs),
		fmt.Sprintf("Пинг: %s мс", c.pingMs),
		fmt.Sprintf("SSL дней осталось: %s", c.sslDaysLeft),
		fmt.Sprintf("DNS резолвинг: %s", c.dnsResolved),
		fmt.Sprintf("Редиректы: %s", c.redirects),
		fmt.Sprintf("Ошибки (последние проверки): %s", c.errorsLast),
	}
	if c.explanation != "" {
		lines = append(lines, "", "Вердикт LLM:", c.explanation)
	}
	plain = strings.Join(lines, "\n")

	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h3>%s (%s)</h3>", html.EscapeString(c.name), html.EscapeString(c.url))
	fmt.Fprintf(&b, "<p><strong>Светофор:</strong> %s</p>", html.EscapeString(c.trafficLight))
	b.WriteString("<table style='border-collapse: collapse;'>")
	b.WriteString(htmlRow("Время", c.timestamp))
	b.WriteString(htmlRow("Код ответа", c.httpStatus))
	b.WriteString(htmlRow("Задержка HTTP", c.latencyMs+" мс"))
	b.WriteString(htmlRow("Пинг", c.pingMs+" мс"))
	b.WriteString(htmlRow("SSL дней осталось", c.sslDaysLeft))
	b.WriteString(htmlRow("DNS резолвинг", c.dnsResolved))
	b.WriteString(htmlRow("Редиректы", c.redirects))
	b.WriteString(htmlRow("Ошибки (последние проверки)", c.errorsLast))
	b.WriteString("</table>")
	if c.explanation != "" {
		b.WriteString("<p><strong>Вердикт LLM:</strong><br>" + html.EscapeString(c.explanation) + "</p>")
	}
	b.WriteString("</body></html>")

	return plain, b.String()
}

type context struct {
	name, url              string
	trafficLight, icon     string
	timestamp              string
	httpStatus, latencyMs  string
	pingMs, sslDaysLeft    string
	dnsResolved, redirects string
	errorsLast, explanation string
}

func buildContext(event bus.ProbeEvent) context {
	logs := event.Logs
	trafficLight := strings.ToUpper(fallback(logs.TrafficLight, "unknown"))
	icon, ok := icons[strings.ToLower(logs.TrafficLight)]
	if !ok {
		icon = "❔"
	}

	dns := "FAIL"
	if logs.DNSResolved {
		dns = "OK"
	}

	explanation := ""
	if event.Explanation != nil {
		explanation = strings.TrimSpace(*event.Explanation)
	}

	return context{
		name:         event.Name,
		url:          event.URL,
		trafficLight: trafficLight,
		icon:         icon,
		timestamp:    fallback(logs.Timestamp, "—"),
		httpStatus:   intOrDash(logs.HTTPStatus),
		latencyMs:    intOrDash(logs.LatencyMs),
		pingMs:       floatOrDash(logs.PingMs),
		sslDaysLeft:  intOrDash(logs.SSLDaysLeft),
		dnsResolved:  dns,
		redirects:    intOrDash(logs.Redirects),
		errorsLast:   intOrDash(logs.ErrorsLast),
		explanation:  explanation,
	}
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func intOrDash(v *int) string {
	if v == nil {
		return "—"
	}
	return strconv.Itoa(*v)
}

func floatOrDash(v *float64) string {
	if v == nil {
		return "—"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func htmlRow(label, value string) string {
	return "<tr><td style='padding:4px 8px;border:1px solid #ddd;'><strong>" +
		html.EscapeString(label) + "</strong></td><td style='padding:4px 8px;border:1px solid #ddd;'>" +
		html.EscapeString(value) + "</td></tr>"
}
