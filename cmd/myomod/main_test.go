package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ayusman/myomod/internal/config"
)

func TestListenPort(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8080", ":8080"},
		{"127.0.0.1:9000", ":9000"},
		{"bad", ":8080"},
	}
	for _, tt := range tests {
		if got := listenPort(tt.addr); got != tt.want {
			t.Errorf("listenPort(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestServeFlags_Apply(t *testing.T) {
	cmd := newServeCmd(new(string))
	if err := cmd.ParseFlags([]string{"--source", "mqtt", "--broker", "tcp://broker:1883", "--drop-every", "3"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	var f serveFlags
	f.source, _ = cmd.Flags().GetString("source")
	f.broker, _ = cmd.Flags().GetString("broker")
	f.dropEvery, _ = cmd.Flags().GetInt("drop-every")

	cfg := config.Default()
	if err := f.apply(cmd, &cfg); err != nil {
		t.Fatalf("apply() error = %v", err)
	}
	if cfg.Source.Kind != config.SourceMQTT || cfg.Source.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Source.Simulator.DropEvery != 3 {
		t.Errorf("DropEvery = %d, want 3", cfg.Source.Simulator.DropEvery)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q, unset flag changed it", cfg.Listen)
	}

	bad := newServeCmd(new(string))
	bad.ParseFlags([]string{"--source", "serial"})
	f = serveFlags{source: "serial"}
	cfg = config.Default()
	if err := f.apply(bad, &cfg); err == nil {
		t.Error("apply() accepted an unknown source")
	}
}

func TestDecodeCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	cmd.SetArgs([]string{"decode", "hand_pose", "ff 80 ff ff ff ff 80 80 02"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if !strings.Contains(out.String(), `"counter": 2`) {
		t.Errorf("decode output %q lacks the counter", out.String())
	}

	cmd.SetArgs([]string{"decode", "hand_pose", "ff80"})
	if err := cmd.Execute(); err == nil {
		t.Error("decode accepted a truncated payload")
	}

	cmd.SetArgs([]string{"decode", "gyro", "00"})
	if err := cmd.Execute(); err == nil {
		t.Error("decode accepted an unknown kind")
	}
}
