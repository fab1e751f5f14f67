package hostvalidate

import "testing"

func TestHostBoundaries(t *testing.T) {
	cases := []struct {
		host          string
		allowLoopback bool
		wantErr       bool
	}{
		{"169.254.169.254", false, true},
		{"169.254.169.254", true, true},
		{"10.0.0.1", false, true},
		{"1.2.3.4", false, false},
		{"localhost", false, true},
		{"localhost", true, false},
	}
	for _, c := range cases {
		err := Host(c.host, c.allowLoopback)
		if (err != nil) != c.wantErr {
			t.Errorf("Host(%q, %v) err=%v, wantErr=%v", c.host, c.allowLoopback, err, c.wantErr)
		}
	}
}

func TestPortBoundaries(t *testing.T) {
	cases := []struct {
		port    int
		wantErr bool
	}{
		{0, true},
		{65536, true},
		{22, false},
		{1, false},
		{65535, false},
	}
	for _, c := range cases {
		err := Port(c.port)
		if (err != nil) != c.wantErr {
			t.Errorf("Port(%d) err=%v, wantErr=%v", c.port, err, c.wantErr)
		}
	}
}
