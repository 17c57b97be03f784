package app

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/emmett/whispering/internal/audio"
	"github.com/emmett/whispering/internal/models"
)

func TestSelectDevice(t *testing.T) {
	devices := []audio.DeviceInfo{
		{Index: 0, Name: "HDMI Output Monitor"},
		{Index: 1, Name: "USB Headset Microphone", IsDefault: true},
		{Index: 2, Name: "Built-in Microphone"},
	}
	dm := &DeviceManager{
		out:  &bytes.Buffer{},
		list: func() ([]audio.DeviceInfo, error) { return devices, nil },
	}

	tests := []struct {
		name    string
		query   string
		want    string
		wantErr bool
	}{
		{"default", "", "USB Headset Microphone", false},
		{"exact", "Built-in Microphone", "Built-in Microphone", false},
		{"substring", "headset", "USB Headset Microphone", false},
		{"missing", "Bluetooth", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dm.SelectDevice(tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SelectDevice(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
			if got.Name != tt.want {
				t.Errorf("SelectDevice(%q) = %q, want %q", tt.query, got.Name, tt.want)
			}
		})
	}
}

func TestListDevicesEmpty(t *testing.T) {
	var out bytes.Buffer
	dm := &DeviceManager{
		out:  &out,
		list: func() ([]audio.DeviceInfo, error) { return nil, nil },
	}
	if err := dm.ListDevices(); err == nil {
		t.Error("ListDevices() error = nil, want error for no devices")
	}
	if !strings.Contains(out.String(), "No audio capture devices found") {
		t.Errorf("output = %q", out.String())
	}
}

func TestListDownloaded(t *testing.T) {
	mgr := models.NewManager(t.TempDir())
	if err := os.WriteFile(mgr.Path(models.DefaultFilename), []byte("ggml"), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	m := &ModelManager{models: mgr, out: &out}
	if err := m.ListDownloaded(); err != nil {
		t.Fatalf("ListDownloaded() error = %v", err)
	}

	got := out.String()
	if !strings.Contains(got, models.DefaultFilename+" [DEFAULT]") {
		t.Errorf("output = %q, want default model marked", got)
	}
	if !strings.Contains(got, mgr.Path(models.DefaultFilename)) {
		t.Errorf("output = %q, want model path", got)
	}
}

func TestDownloadUnknownModel(t *testing.T) {
	m := &ModelManager{models: models.NewManager(t.TempDir()), out: &bytes.Buffer{}}
	if err := m.Download(t.Context(), "ggml-enormous.bin"); err == nil {
		t.Error("Download() error = nil, want unknown model error")
	}
}
