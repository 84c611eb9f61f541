package config

import "testing"

func TestParseINIAndConvert(t *testing.T) {
	data := `
[memcached]
hosts = 10.0.0.1:11211, 10.0.0.2:11211 # inline comment
operation-timeout = 250ms
compression-threshold = 1024

[socket]
connect-timeout = 2s
keep-alive = false
`
	cfg, err := parseINI(data)
	if err != nil {
		t.Fatalf("parseINI: %v", err)
	}

	hosts := cfg.Hosts()
	if len(hosts) != 2 || hosts[0] != "10.0.0.1:11211" || hosts[1] != "10.0.0.2:11211" {
		t.Fatalf("unexpected hosts: %v", hosts)
	}

	clientCfg, err := cfg.ToClientConfig()
	if err != nil {
		t.Fatalf("ToClientConfig: %v", err)
	}
	if clientCfg.OperationTimeout.String() != "250ms" {
		t.Fatalf("expected 250ms operation timeout, got %v", clientCfg.OperationTimeout)
	}
	if clientCfg.CompressionThreshold != 1024 {
		t.Fatalf("expected 1024 compression threshold, got %d", clientCfg.CompressionThreshold)
	}
	if clientCfg.Sock.KeepAlive {
		t.Fatal("expected keep-alive override to false")
	}
}

func TestParseINIEmptyFieldsKeepDefaults(t *testing.T) {
	cfg, err := parseINI("[memcached]\nhosts = a:1\n")
	if err != nil {
		t.Fatalf("parseINI: %v", err)
	}
	clientCfg, err := cfg.ToClientConfig()
	if err != nil {
		t.Fatalf("ToClientConfig: %v", err)
	}
	if clientCfg.CompressionThreshold != 64*1024 {
		t.Fatalf("expected default compression threshold, got %d", clientCfg.CompressionThreshold)
	}
}
