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

package session

import "log"

// ProgressSink is the UI collaborator that progress and notification
// frames are forwarded to, verbatim.
type ProgressSink interface {
	Progress(f *ProgressFrame)
}

// progressRouter enforces per-id style exclusivity before handing
// frames to the sink: an id opened with style "notification" never
// sees "old"-style frames, and vice versa.
type progressRouter struct {
	Verbose bool

	sink   ProgressSink
	styles map[string]string
}

func newProgressRouter(sink ProgressSink) *progressRouter {
	return &progressRouter{
		sink:   sink,
		styles: make(map[string]string, 4),
	}
}

func (pr *progressRouter) logf(format string, args ...interface{}) {
	if !pr.Verbose {
		return
	}
	log.Printf(format, args...)
}

func (pr *progressRouter) route(f *ProgressFrame) {
	style := f.Style
	if style == "" {
		style = "old"
	}

	if known, have := pr.styles[f.Id]; have {
		if known != style {
			pr.logf("progress id %s is style '%s'; dropping '%s' frame", f.Id, known, style)
			return
		}
	} else {
		pr.styles[f.Id] = style
	}

	if f.Kind == "close" {
		delete(pr.styles, f.Id)
	}

	if pr.sink != nil {
		pr.sink.Progress(f)
	}
}
