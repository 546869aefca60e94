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

import "time"

// Backoff produces the delay before each reconnection attempt: a
// capped exponential sequence.  Next advances the sequence; Reset
// returns it to the initial delay.
//
// A Backoff never consults the wall clock, so it's trivial to test.
type Backoff struct {
	// Initial is the first delay returned after a Reset.
	Initial time.Duration

	// Max caps the sequence.
	Max time.Duration

	// Factor multiplies the delay after each Next.
	Factor float64

	next time.Duration
}

// DefaultBackoff returns a Backoff with the stock parameters.
func DefaultBackoff() *Backoff {
	return &Backoff{
		Initial: 500 * time.Millisecond,
		Max:     30 * time.Second,
		Factor:  2,
	}
}

// Next returns the delay for the next attempt and advances the
// sequence.
func (b *Backoff) Next() time.Duration {
	if b.next == 0 {
		b.next = b.Initial
	}
	d := b.next

	n := time.Duration(float64(b.next) * b.Factor)
	if n > b.Max {
		n = b.Max
	}
	b.next = n

	return d
}

// Reset returns the sequence to its initial delay.  Called after a
// successful reconnect.
func (b *Backoff) Reset() {
	b.next = 0
}
