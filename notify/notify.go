/* Copyright 2020 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package notify provides progress-UI collaborators: a renderer that
// turns markdown notification bodies into HTML, and a logging sink.
package notify

import (
	"log"

	"github.com/russross/blackfriday/v2"

	"github.com/Comcast/tether/session"
)

// Markdown renders markdown source as HTML.
func Markdown(src string) string {
	return string(blackfriday.Run([]byte(src)))
}

// Renderer is a session.ProgressSink that renders a notification's
// markdown body to HTML before forwarding the frame.
//
// A frame whose Content carries a "markdown" string gets an "html"
// entry added; everything else passes through untouched.
type Renderer struct {
	// Next receives every frame after rendering.
	Next session.ProgressSink
}

func (r *Renderer) Progress(f *session.ProgressFrame) {
	if f.Style == "notification" && f.Content != nil {
		if md, is := f.Content["markdown"].(string); is {
			f.Content["html"] = Markdown(md)
		}
	}
	if r.Next != nil {
		r.Next.Progress(f)
	}
}

// LogSink writes progress events to the log.  Useful as the terminal
// sink for headless clients.
type LogSink struct {
	// Quiet drops everything.
	Quiet bool
}

func (s *LogSink) Progress(f *session.ProgressFrame) {
	if s.Quiet {
		return
	}
	log.Printf("progress %s %s style=%s", f.Kind, f.Id, f.Style)
}
