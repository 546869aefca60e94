package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Comcast/tether/cond"
	"github.com/Comcast/tether/notify"
	"github.com/Comcast/tether/session"
	"github.com/Comcast/tether/snapshot"
	"github.com/Comcast/tether/transport"
	. "github.com/Comcast/tether/util/testutil"
)

func main() {

	var (
		configFile = flag.String("c", "", "YAML config filename")
		urls       = flag.String("url", "", "server WebSocket URL (overrides config)")
		snapFile   = flag.String("d", "", "snapshot filename (overrides config)")

		broker   = flag.String("mqtt", "", "MQTT broker; connect over MQTT instead of WebSocket")
		subTopic = flag.String("sub", "tether/out", "MQTT subscription topic")
		pubTopic = flag.String("pub", "tether/in", "MQTT publish topic")

		binds   = flag.String("b", "", "comma-separated output names to bind to stdout")
		verbose = flag.Bool("v", false, "log lots of wonderful things")
	)

	flag.Parse()

	var (
		conf = &session.Config{}
		err  error
	)
	if *configFile != "" {
		if conf, err = session.LoadConfig(*configFile); err != nil {
			panic(err)
		}
	}
	if *urls != "" {
		conf.URL = *urls
	}
	if *snapFile != "" {
		conf.SnapshotFile = *snapFile
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dialer transport.Dialer
	if *broker != "" {
		dialer = &transport.MQTTDialer{
			Broker:   *broker,
			ClientId: conf.WorkerId,
			SubTopic: *subTopic,
			PubTopic: *pubTopic,
		}
		if conf.URL == "" {
			// Satisfies config validation; the MQTT dialer
			// doesn't use it.
			conf.URL = "mqtt://" + *broker
		}
	} else {
		dialer = &transport.WebSocketDialer{
			URL:     conf.URL,
			Verbose: *verbose,
		}
	}

	var store *snapshot.Store
	if conf.SnapshotFile != "" {
		if store, err = snapshot.NewStore(conf.SnapshotFile); err != nil {
			panic(err)
		}
		if err = store.Open(ctx); err != nil {
			panic(err)
		}
		defer store.Close(ctx)
	}

	s, err := session.NewSession(conf, dialer)
	if err != nil {
		panic(err)
	}
	s.Verbose = *verbose
	s.Store = store
	s.Progress = &notify.Renderer{Next: &notify.LogSink{}}
	s.Cond = cond.NewEngine(s)
	s.Errors = make(chan error, 8)
	s.OnExpired = func() {
		log.Printf("session expired; connection lost permanently")
		cancel()
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-s.Errors:
				log.Printf("session error: %s", err)
			}
		}
	}()

	if err = s.Connect(ctx, nil); err != nil {
		panic(err)
	}
	defer s.Close()

	if *binds != "" {
		for _, id := range strings.Split(*binds, ",") {
			s.BindOutput(id, &stdoutAdapter{id: id})
		}
	}

	// Lines on stdin are JSON objects.  An object with a "method"
	// is a correlated call; anything else is a batch of input
	// values.
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			log.Printf("bad input line: %s", err)
			continue
		}

		if method, is := m["method"].(string); is {
			args, _ := m["args"].([]interface{})
			err := s.Call(method, args,
				func(value interface{}) {
					fmt.Printf("result %s %s\n", method, JS(value))
				},
				func(err error) {
					fmt.Printf("failed %s %s\n", method, err)
				},
				nil)
			if err != nil {
				log.Printf("call %s: %s", method, err)
			}
			continue
		}

		if err := s.SendInput(m); err != nil {
			log.Printf("sendInput: %s", err)
		}
	}
}

// stdoutAdapter is a session.Adapter that just prints what it's
// given.
type stdoutAdapter struct {
	id string
}

func (a *stdoutAdapter) Receive(value interface{}) {
	fmt.Printf("value %s %s\n", a.id, JS(value))
}

func (a *stdoutAdapter) ShowError(err *session.Error) {
	fmt.Printf("error %s %s\n", a.id, err.Message)
}

func (a *stdoutAdapter) Id() string {
	return a.id
}
