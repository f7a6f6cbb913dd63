package helper

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// RenderReply resolves spintax groups such as {Hai|Halo|Hi} in a reply
// template, then fills {NAME} variables. Variable values come from the sender
// and are inserted verbatim, braces included. Braces without a '|' that are
// not known variables are left untouched.
func RenderReply(template string, vars map[string]string) string {
	return RenderVariables(RenderSpintax(template), vars, time.Now())
}

func RenderSpintax(text string) string {
	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, "{")
		if start == -1 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end == -1 {
			b.WriteString(rest)
			break
		}
		end += start

		inner := rest[start+1 : end]
		b.WriteString(rest[:start])
		if strings.Contains(inner, "|") {
			options := strings.Split(inner, "|")
			b.WriteString(options[rand.IntN(len(options))])
		} else {
			b.WriteString(rest[start : end+1])
		}
		rest = rest[end+1:]
	}
	return b.String()
}

// RenderVariables replaces {KEY} for every entry of vars plus the time based
// {TIME_GREETING}, {DAY_NAME} and {DATE}.
func RenderVariables(text string, vars map[string]string, now time.Time) string {
	hour := now.Hour()
	var timeGreeting string
	switch {
	case hour >= 5 && hour < 10:
		timeGreeting = "Pagi"
	case hour >= 10 && hour < 15:
		timeGreeting = "Siang"
	case hour >= 15 && hour < 18:
		timeGreeting = "Sore"
	default:
		timeGreeting = "Malam"
	}

	dayNames := []string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}
	monthNames := []string{"", "Januari", "Februari", "Maret", "April", "Mei", "Juni",
		"Juli", "Agustus", "September", "Oktober", "November", "Desember"}

	pairs := []string{
		"{TIME_GREETING}", timeGreeting,
		"{DAY_NAME}", dayNames[now.Weekday()],
		"{DATE}", fmt.Sprintf("%d %s %d", now.Day(), monthNames[now.Month()], now.Year()),
	}
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
