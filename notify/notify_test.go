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

package notify

import (
	"strings"
	"testing"

	"github.com/Comcast/tether/session"
)

type collector struct {
	frames []*session.ProgressFrame
}

func (c *collector) Progress(f *session.ProgressFrame) {
	c.frames = append(c.frames, f)
}

func TestMarkdown(t *testing.T) {
	html := Markdown("**done**")
	if !strings.Contains(html, "<strong>done</strong>") {
		t.Fatalf("got %q", html)
	}
}

func TestRendererNotification(t *testing.T) {
	c := &collector{}
	r := &Renderer{Next: c}

	r.Progress(&session.ProgressFrame{
		Kind:  "open",
		Id:    "n1",
		Style: "notification",
		Content: map[string]interface{}{
			"markdown": "# Upload complete",
		},
	})

	if len(c.frames) != 1 {
		t.Fatalf("got %d frames", len(c.frames))
	}
	html, is := c.frames[0].Content["html"].(string)
	if !is || !strings.Contains(html, "<h1>") {
		t.Fatalf("got %#v", c.frames[0].Content)
	}
}

func TestRendererPassThrough(t *testing.T) {
	c := &collector{}
	r := &Renderer{Next: c}

	f := &session.ProgressFrame{
		Kind:  "open",
		Id:    "p1",
		Style: "old",
		Content: map[string]interface{}{
			"message": "working...",
		},
	}
	r.Progress(f)

	if len(c.frames) != 1 {
		t.Fatalf("got %d frames", len(c.frames))
	}
	if _, have := c.frames[0].Content["html"]; have {
		t.Fatal("old-style frames must pass through untouched")
	}
}
