package notify

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/oa-compliance-service/internal/config"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		want    int
		wantErr bool
	}{
		{
			name: "webhook only",
			cfg:  config.Config{},
			want: 1,
		},
		{
			name: "mail and webhook",
			cfg:  config.Config{Mail: config.MailConfig{Enabled: true, Host: "smtp.example.org", Port: 587}},
			want: 2,
		},
		{
			name: "kafka events",
			cfg: config.Config{Events: config.EventsConfig{
				Enabled: true,
				Driver:  config.EventsDriverKafka,
				Brokers: []string{"localhost:9092"},
				Topic:   "oac.jobs",
			}},
			want: 2,
		},
		{
			name:    "unknown driver",
			cfg:     config.Config{Events: config.EventsConfig{Enabled: true, Driver: "carrier-pigeon"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			multi, closeFn, err := Build(&tt.cfg, nil, zerolog.Nop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, multi.Len())
			assert.NoError(t, closeFn())
		})
	}
}
