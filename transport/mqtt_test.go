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

package transport

import "testing"

func TestMQTTDialerValidate(t *testing.T) {
	tests := []struct {
		name string
		d    MQTTDialer
		bad  bool
	}{
		{
			name: "complete",
			d: MQTTDialer{
				Broker:   "tcp://localhost:1883",
				SubTopic: "tether/out",
				PubTopic: "tether/in",
			},
		},
		{
			name: "no broker",
			d: MQTTDialer{
				SubTopic: "tether/out",
				PubTopic: "tether/in",
			},
			bad: true,
		},
		{
			name: "no sub topic",
			d: MQTTDialer{
				Broker:   "tcp://localhost:1883",
				PubTopic: "tether/in",
			},
			bad: true,
		},
		{
			name: "no pub topic",
			d: MQTTDialer{
				Broker:   "tcp://localhost:1883",
				SubTopic: "tether/out",
			},
			bad: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if tt.bad && err == nil {
				t.Fatal("expected an error")
			}
			if !tt.bad && err != nil {
				t.Fatal(err)
			}
		})
	}
}
