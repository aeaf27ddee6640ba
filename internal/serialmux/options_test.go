package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "defaults",
			in:   PortOptions{},
			want: PortOptions{BaudRate: DefaultCLIBaudRate, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "explicit data port",
			in:   PortOptions{BaudRate: DefaultDataBaudRate, DataBits: 7, StopBits: 2, Parity: "even"},
			want: PortOptions{BaudRate: DefaultDataBaudRate, DataBits: 7, StopBits: 2, Parity: "E"},
		},
		{
			name: "negative baud defaults",
			in:   PortOptions{BaudRate: -5, Parity: " odd "},
			want: PortOptions{BaudRate: DefaultCLIBaudRate, DataBits: 8, StopBits: 1, Parity: "O"},
		},
		{name: "bad data bits", in: PortOptions{DataBits: 9}, wantErr: true},
		{name: "bad stop bits", in: PortOptions{StopBits: 3}, wantErr: true},
		{name: "bad parity", in: PortOptions{Parity: "mark"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPortOptions_Equal(t *testing.T) {
	a := PortOptions{}
	b := PortOptions{BaudRate: DefaultCLIBaudRate, DataBits: 8, StopBits: 1, Parity: "none"}
	if !a.Equal(b) {
		t.Error("zero options should equal explicit defaults")
	}
	if a.Equal(PortOptions{BaudRate: DefaultDataBaudRate}) {
		t.Error("different baud rates should not be equal")
	}
	if a.Equal(PortOptions{Parity: "bogus"}) {
		t.Error("invalid options should never be equal")
	}
}

func TestPortOptions_Mode(t *testing.T) {
	mode, err := PortOptions{BaudRate: DefaultDataBaudRate, StopBits: 2, Parity: "E"}.Mode()
	if err != nil {
		t.Fatalf("Mode() error = %v", err)
	}
	want := SerialPortMode{BaudRate: DefaultDataBaudRate, DataBits: 8, Parity: EvenParity, StopBits: TwoStopBits}
	if *mode != want {
		t.Errorf("Mode() = %+v, want %+v", *mode, want)
	}

	if _, err := (PortOptions{DataBits: 4}).Mode(); err == nil {
		t.Error("expected error for invalid data bits")
	}
}

func TestSerialMode(t *testing.T) {
	got, err := SerialMode(nil)
	if err != nil {
		t.Fatalf("SerialMode(nil) error = %v", err)
	}
	if got.BaudRate != DefaultCLIBaudRate || got.DataBits != 8 || got.Parity != serial.NoParity || got.StopBits != serial.OneStopBit {
		t.Errorf("SerialMode(nil) = %+v", got)
	}

	got, err = SerialMode(&SerialPortMode{BaudRate: 9600, DataBits: 7, Parity: OddParity, StopBits: TwoStopBits})
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	if got.BaudRate != 9600 || got.DataBits != 7 || got.Parity != serial.OddParity || got.StopBits != serial.TwoStopBits {
		t.Errorf("SerialMode() = %+v", got)
	}

	if _, err := SerialMode(&SerialPortMode{BaudRate: 0}); err == nil {
		t.Error("expected error for zero baud rate")
	}
	if _, err := SerialMode(&SerialPortMode{BaudRate: 9600, Parity: Parity(9)}); err == nil {
		t.Error("expected error for unknown parity")
	}
}

func TestDataPortMode(t *testing.T) {
	if got := DataPortMode().BaudRate; got != DefaultDataBaudRate {
		t.Errorf("DataPortMode().BaudRate = %d, want %d", got, DefaultDataBaudRate)
	}
	if got := DefaultSerialPortMode().BaudRate; got != DefaultCLIBaudRate {
		t.Errorf("DefaultSerialPortMode().BaudRate = %d, want %d", got, DefaultCLIBaudRate)
	}
}

func TestRealSerialPortFactory_OpenInvalidPath(t *testing.T) {
	factory := RealSerialPortFactory{}
	if _, err := factory.Open("/dev/nonexistent-serial-port-12345", nil); err == nil {
		t.Error("expected error when opening non-existent serial port")
	}
	if _, err := factory.Open("/dev/nonexistent-serial-port-12345", &SerialPortMode{BaudRate: -1}); err == nil {
		t.Error("expected error for invalid mode")
	}
}
