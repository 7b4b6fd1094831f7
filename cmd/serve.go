// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 the mitsuaire authors

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/mitsuaire/mitsuaire/pkg/cn105"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serveListen     string
	mqttBroker      string
	mqttTopicPrefix string
	mqttClientID    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the heat pump bridge daemon",
	Long: `Run the CN105 protocol engine against the unit and expose it over HTTP.

Endpoints:
  GET  /status.json  Current desired/observed state snapshot
  POST /set.json     Partial settings change (JSON body)
  GET  /ws           State-change event push (JSON over WebSocket)
  GET  /uart         Raw CN105 byte bridge (binary WebSocket frames)
  GET  /metrics      Prometheus metrics

With --mqtt-broker set, per-field state changes are also published to
<prefix>/<field> and the full state snapshot to <prefix>/status, and
settings changes are accepted on <prefix>/set as a JSON delta.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", ":8587", "HTTP listen address")
	serveCmd.Flags().StringVar(&mqttBroker, "mqtt-broker", "", "MQTT broker URL (tcp://host:1883), empty disables MQTT")
	serveCmd.Flags().StringVar(&mqttTopicPrefix, "mqtt-topic", "mitsuaire", "MQTT topic prefix")
	serveCmd.Flags().StringVar(&mqttClientID, "mqtt-client-id", "mitsuaire", "MQTT client id")
}

// statusResponse is the /status.json document. The field vocabulary matches
// the home automation integrations that consume it.
type statusResponse struct {
	Connected bool `json:"connected"`

	PowerOn     bool           `json:"poweron"`
	Mode        cn105.Mode     `json:"mode"`
	DesiredTemp float64        `json:"desired_temperature_c"`
	FanSpeed    cn105.FanSpeed `json:"fan_speed"`
	Vane        cn105.Vane     `json:"vane"`
	WideVane    cn105.WideVane `json:"widevane"`

	RoomTemp       float64 `json:"room_temperature_c"`
	Operating      bool    `json:"operating"`
	CompressorFreq int     `json:"compressor_frequency"`
	Standby        bool    `json:"standby"`
}

func statusFromState(st cn105.EngineState) statusResponse {
	return statusResponse{
		Connected:      st.Connected,
		PowerOn:        st.Desired.Power,
		Mode:           st.Desired.Mode,
		DesiredTemp:    st.Desired.TargetTemp,
		FanSpeed:       st.Desired.Fan,
		Vane:           st.Desired.Vane,
		WideVane:       st.Desired.WideVane,
		RoomTemp:       st.RoomTemp,
		Operating:      st.Operating,
		CompressorFreq: st.CompressorFreq,
		Standby:        st.Standby,
	}
}

// wireEvent is the JSON shape of one /ws push message.
type wireEvent struct {
	Kind    string      `json:"kind"`
	Time    time.Time   `json:"time"`
	Field   string      `json:"field,omitempty"`
	Old     interface{} `json:"old,omitempty"`
	New     interface{} `json:"new,omitempty"`
	State   string      `json:"state,omitempty"`
	Outcome string      `json:"outcome,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func wireEventFrom(ev cn105.Event) wireEvent {
	w := wireEvent{
		Kind:    string(ev.Kind),
		Time:    ev.Time,
		Field:   ev.Field,
		Old:     ev.Old,
		New:     ev.New,
		Outcome: string(ev.Outcome),
	}
	if ev.Kind == cn105.EventConnectionChange {
		w.State = ev.State.String()
	}
	if ev.Err != nil {
		w.Error = ev.Err.Error()
	}
	return w
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logrus.WithField("component", "serve")

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	engine := cn105.NewEngine(conn, cn105.EngineConfig{Logger: logrus.StandardLogger()})
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("connection", connInfo).Info("bridge starting")
	go func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("engine stopped")
			stop()
		}
	}()

	registerMetrics(engine)

	var publisher *mqttPublisher
	if mqttBroker != "" {
		publisher, err = newMQTTPublisher(engine, log)
		if err != nil {
			return err
		}
		defer publisher.close()
		go publisher.run(ctx)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statusFromState(engine.State()))
	})
	mux.HandleFunc("/set.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var delta cn105.SettingsDelta
		if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
			http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
			return
		}
		if err := engine.SetDesired(delta); err != nil {
			status := http.StatusBadRequest
			if err == cn105.ErrNotConnected {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statusFromState(engine.State()))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveEventPush(engine, log, w, r)
	})
	mux.HandleFunc("/uart", func(w http.ResponseWriter, r *http.Request) {
		serveUartBridge(engine, log, w, r)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: serveListen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.WithField("listen", serveListen).Info("http listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	log.Info("bridge stopped")
	return nil
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  256,
	WriteBufferSize: 1024,
	// The bridge runs on a trusted home network segment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveEventPush streams engine notifications to one WebSocket client. The
// first message is always a full state snapshot so clients never have to
// merge a partial view.
func serveEventPush(engine *cn105.Engine, log logrus.FieldLogger, w http.ResponseWriter, r *http.Request) {
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("ws upgrade failed")
		return
	}
	defer ws.Close()

	sub := engine.Subscribe()
	defer sub.Close()

	snapshot := struct {
		Kind   string         `json:"kind"`
		Status statusResponse `json:"status"`
	}{Kind: "snapshot", Status: statusFromState(engine.State())}
	if err := ws.WriteJSON(snapshot); err != nil {
		return
	}

	// Discard client frames, but use the read loop to notice disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := ws.WriteJSON(wireEventFrom(ev)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// serveUartBridge passes raw CN105 frames between a WebSocket client and
// the unit through the session's injection path. Each binary message is one
// pre-framed packet; the unit's reply (if any) comes back the same way.
func serveUartBridge(engine *cn105.Engine, log logrus.FieldLogger, w http.ResponseWriter, r *http.Request) {
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("ws upgrade failed")
		return
	}
	defer ws.Close()

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		resp, err := engine.Inject(ctx, data)
		cancel()
		if err != nil {
			log.WithError(err).Debug("uart inject failed")
			return
		}
		if resp == nil {
			continue
		}
		raw, err := resp.Bytes()
		if err != nil {
			continue
		}
		if err := ws.WriteMessage(websocket.BinaryMessage, raw); err != nil {
			return
		}
	}
}

// registerMetrics exposes link counters and unit state to Prometheus.
func registerMetrics(engine *cn105.Engine) {
	counter := func(name, help string, value func(s *cn105.Stats) uint64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "mitsuaire", Name: name, Help: help,
		}, func() float64 { return float64(value(engine.Stats())) })
	}
	gauge := func(name, help string, value func(st cn105.EngineState) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "mitsuaire", Name: name, Help: help,
		}, func() float64 { return value(engine.State()) })
	}
	boolToFloat := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}

	prometheus.MustRegister(
		counter("frames_decoded_total", "Frames decoded from the unit", (*cn105.Stats).FramesDecoded),
		counter("checksum_errors_total", "Frames rejected for checksum mismatch", (*cn105.Stats).ChecksumErrors),
		counter("skipped_bytes_total", "Bytes discarded during resynchronization", (*cn105.Stats).SkippedBytes),
		counter("retransmits_total", "Request retransmissions", (*cn105.Stats).Retransmits),
		counter("timeouts_total", "Response timeouts", (*cn105.Stats).Timeouts),
		counter("commands_failed_total", "Commands that exhausted their retries", (*cn105.Stats).CommandsFailed),
		counter("unsolicited_frames_total", "Frames received with no request outstanding", (*cn105.Stats).Unsolicited),
		gauge("connected", "1 while the CN105 link is ready", func(st cn105.EngineState) float64 { return boolToFloat(st.Connected) }),
		gauge("room_temperature_celsius", "Reported room temperature", func(st cn105.EngineState) float64 { return st.RoomTemp }),
		gauge("target_temperature_celsius", "Desired target temperature", func(st cn105.EngineState) float64 { return st.Desired.TargetTemp }),
		gauge("operating", "1 while the unit is actively conditioning", func(st cn105.EngineState) float64 { return boolToFloat(st.Operating) }),
		gauge("compressor_frequency", "Reported compressor frequency", func(st cn105.EngineState) float64 { return float64(st.CompressorFreq) }),
		gauge("standby", "1 while the unit reports standby", func(st cn105.EngineState) float64 { return boolToFloat(st.Standby) }),
	)
}

// mqttPublisher mirrors engine state to an MQTT broker and accepts settings
// deltas on the set topic.
type mqttPublisher struct {
	engine *cn105.Engine
	client mqtt.Client
	log    logrus.FieldLogger
}

func newMQTTPublisher(engine *cn105.Engine, log logrus.FieldLogger) (*mqttPublisher, error) {
	p := &mqttPublisher{engine: engine, log: log.WithField("component", "mqtt")}

	opts := mqtt.NewClientOptions().
		AddBroker(mqttBroker).
		SetClientID(mqttClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			p.log.Info("mqtt connected")
			if token := c.Subscribe(mqttTopicPrefix+"/set", 0, p.handleSet); token.Wait() && token.Error() != nil {
				p.log.WithError(token.Error()).Error("mqtt subscribe failed")
			}
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	p.client = client
	return p, nil
}

func (p *mqttPublisher) handleSet(_ mqtt.Client, msg mqtt.Message) {
	var delta cn105.SettingsDelta
	if err := json.Unmarshal(msg.Payload(), &delta); err != nil {
		p.log.WithError(err).Warn("bad set payload")
		return
	}
	if err := p.engine.SetDesired(delta); err != nil {
		p.log.WithError(err).Warn("mqtt set rejected")
	}
}

// run mirrors observed-state changes to per-field topics plus a retained
// full snapshot, so dashboards can subscribe either way.
func (p *mqttPublisher) run(ctx context.Context) {
	sub := p.engine.Subscribe()
	defer sub.Close()

	publishSnapshot := func() {
		data, err := json.Marshal(statusFromState(p.engine.State()))
		if err != nil {
			return
		}
		p.client.Publish(mqttTopicPrefix+"/status", 0, true, data)
	}
	publishSnapshot()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case cn105.EventObservedChange:
				p.client.Publish(fmt.Sprintf("%s/%s", mqttTopicPrefix, ev.Field), 0, true, fmt.Sprintf("%v", ev.New))
				publishSnapshot()
			case cn105.EventConnectionChange:
				p.client.Publish(mqttTopicPrefix+"/connection", 0, true, ev.State.String())
				publishSnapshot()
			}
		}
	}
}

func (p *mqttPublisher) close() {
	p.client.Disconnect(250)
}
