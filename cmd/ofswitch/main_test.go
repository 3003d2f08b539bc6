package main

import "testing"

func TestValidateArgs(t *testing.T) {
	tests := []struct {
		name       string
		interfaces string
		ip         string
		port       int
		wantErr    bool
		wantAddr   string
		wantNames  int
	}{
		{
			name:       "single interface",
			interfaces: "eth0",
			ip:         "10.0.0.1",
			port:       6633,
			wantAddr:   "10.0.0.1:6633",
			wantNames:  1,
		},
		{
			name:       "trims whitespace and empty entries",
			interfaces: " eth0, eth1,,",
			ip:         "10.0.0.1",
			port:       6653,
			wantAddr:   "10.0.0.1:6653",
			wantNames:  2,
		},
		{
			name:       "no interfaces",
			interfaces: "",
			ip:         "10.0.0.1",
			port:       6633,
			wantErr:    true,
		},
		{
			name:       "too many interfaces",
			interfaces: "a,b,c,d,e,f,g,h,i,j,k",
			ip:         "10.0.0.1",
			port:       6633,
			wantErr:    true,
		},
		{
			name:       "bad ip",
			interfaces: "eth0",
			ip:         "not-an-ip",
			port:       6633,
			wantErr:    true,
		},
		{
			name:       "ipv6 rejected",
			interfaces: "eth0",
			ip:         "::1",
			port:       6633,
			wantErr:    true,
		},
		{
			name:       "port out of range",
			interfaces: "eth0",
			ip:         "10.0.0.1",
			port:       0,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names, addr, err := validateArgs(tt.interfaces, tt.ip, tt.port)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("validateArgs(%q, %q, %d) succeeded, want error", tt.interfaces, tt.ip, tt.port)
				}
				return
			}

			if err != nil {
				t.Fatalf("validateArgs: %v", err)
			}
			if addr != tt.wantAddr {
				t.Fatalf("addr = %q, want %q", addr, tt.wantAddr)
			}
			if len(names) != tt.wantNames {
				t.Fatalf("len(names) = %d, want %d", len(names), tt.wantNames)
			}
		})
	}
}
