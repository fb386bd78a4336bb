/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

// A single die pip, doubling as the favicon.
const faviconSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 32 32"><rect x="2" y="2" width="28" height="28" rx="6" fill="#b3282d"/><circle cx="16" cy="16" r="4" fill="#fff"/></svg>`

func getFavicon() string {
	return `<link rel="icon" type="image/svg+xml" href="/favicon.svg">
	<meta name="theme-color" content="#b3282d">`
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body{font-family:system-ui,sans-serif;max-width:40em;margin:2em auto;padding:0 1em;}code{background:#eee;padding:0.1em 0.3em;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body>%s</body></html>", body))

	return htmlBody.String()
}

func serveFavicon(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Content-Length", strconv.Itoa(len(faviconSVG)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(faviconSVG))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveHomePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		body := fmt.Sprintf(`<h1>Perudo</h1>
<p>A bluffing dice game for 2&ndash;6 players.</p>
<ul>
<li><a href="%s/play">Open a room</a> and share the code</li>
<li><a href="%s/gauntlet">Run the gauntlet</a> against the house crew</li>
</ul>
<p>Play from a terminal with <code>perudo client --room CODE --name NAME</code>.</p>`,
			cfg.prefix, cfg.prefix)

		fmt.Fprint(w, newPage("Perudo", body))
	}
}

// serveRoomPage is the landing page for one room: the code to share, a
// QR link, and how to connect a client.
func serveRoomPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := normalizeRoomCode(ps.ByName("code"))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		body := fmt.Sprintf(`<h1>Room %s</h1>
<p>Share this code, or the <a href="%s/play/%s/qr">QR code</a>, with the other players.</p>
<p>Join from a terminal:</p>
<p><code>perudo client --server ws://%s%s/play/%s/ws --name NAME</code></p>
<p><a href="%s/">Back home</a></p>`,
			code, cfg.prefix, code, r.Host, cfg.prefix, code, cfg.prefix)

		fmt.Fprint(w, newPage("Room "+code, body))
	}
}
