package topic

import "testing"

func TestKeys(t *testing.T) {
	k := Keys{FileBase: "fileTransfer", AckBase: "fileAck"}
	if got := k.File("10KB"); got != "fileTransfer/10KB" {
		t.Errorf("File() = %q", got)
	}
	if got := k.Ack("10KB"); got != "fileAck/10KB" {
		t.Errorf("Ack() = %q", got)
	}
	if got := k.FilePattern(); got != "fileTransfer/#" {
		t.Errorf("FilePattern() = %q", got)
	}
	if got := k.AckPattern(); got != "fileAck/#" {
		t.Errorf("AckPattern() = %q", got)
	}
}

func TestKeys_ParseFile(t *testing.T) {
	k := Keys{FileBase: "lab/fileTransfer", AckBase: "lab/fileAck"}
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{topic: "lab/fileTransfer/1MB", want: "1MB", wantOK: true},
		{topic: "lab/fileTransfer/report.bin", want: "report.bin", wantOK: true},
		{topic: "lab/fileAck/1MB"},
		{topic: "lab/fileTransfer/"},
		{topic: "lab/fileTransfer"},
		{topic: "lab/fileTransfer/a/b"},
		{topic: "lab/fileTransfer/.."},
		{topic: "other/1MB"},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := k.ParseFile(tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseFile(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestKeys_ParseAck(t *testing.T) {
	k := Keys{FileBase: "fileTransfer", AckBase: "fileAck"}
	name, ok := k.ParseAck(k.Ack("100B"))
	if !ok || name != "100B" {
		t.Errorf("ParseAck() = %q, %v", name, ok)
	}
	if _, ok := k.ParseAck(k.File("100B")); ok {
		t.Error("ParseAck() accepted a file topic")
	}
}
