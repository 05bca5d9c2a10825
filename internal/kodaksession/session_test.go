package kodaksession

import (
	"testing"
	"time"

	"github.com/tjsw/zinkprint/internal/kodakproto"
	"github.com/tjsw/zinkprint/internal/transport"
	"github.com/tjsw/zinkprint/internal/transport/transporttest"
	"github.com/tjsw/zinkprint/internal/zerr"
)

func fakeDialer(fake *transporttest.Fake) func(transport.Device) (transport.Transport, error) {
	return func(transport.Device) (transport.Transport, error) {
		return fake, nil
	}
}

func responseWithError(cmd, subType byte, errCode byte) []byte {
	p := make([]byte, kodakproto.PacketSize)
	copy(p[0:4], []byte{0x1B, 0x2A, 0x43, 0x41})
	p[6] = cmd
	p[7] = subType
	p[8] = errCode
	return p
}

func newReadySession(t *testing.T, battery int) (*Session, *transporttest.Fake) {
	t.Helper()
	fake := transporttest.NewFake()

	accInfo := responseWithError(kodakproto.CmdGetAccessoryInfo, kodakproto.SubTypeDefault, kodakproto.ErrSuccess)
	accInfo[12] = byte(battery)
	fake.QueueResponse(kodakproto.BuildGetAccessoryInfo(false)[0:8], accInfo)

	sess := New(transport.Device{Address: "AA:BB:CC:DD:EE:FF"}, false, Options{}, fakeDialer(fake))
	if err := sess.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sess.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return sess, fake
}

func TestInitializeCachesBatteryAndMovesToInitialized(t *testing.T) {
	sess, _ := newReadySession(t, 80)
	if sess.State() != StateInitialized {
		t.Fatalf("state = %v, want Initialized", sess.State())
	}
	if sess.battery != 80 {
		t.Fatalf("battery = %d, want 80", sess.battery)
	}
}

func TestInitializeTakesNoPaperButStillInitializes(t *testing.T) {
	fake := transporttest.NewFake()
	accInfo := responseWithError(kodakproto.CmdGetAccessoryInfo, kodakproto.SubTypeDefault, kodakproto.ErrNoPaper)
	accInfo[12] = 50
	fake.QueueResponse(kodakproto.BuildGetAccessoryInfo(false)[0:8], accInfo)

	sess := New(transport.Device{Address: "AA:BB:CC:DD:EE:FF"}, false, Options{}, fakeDialer(fake))
	if err := sess.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	err := sess.Initialize()
	if !zerr.Of(err, zerr.KindNoPaper) {
		t.Fatalf("Initialize error = %v, want KindNoPaper", err)
	}
	if sess.State() != StateInitialized {
		t.Fatalf("state = %v, want Initialized despite NoPaper", sess.State())
	}
}

func TestInitializeFailsFatalOnOtherErrors(t *testing.T) {
	fake := transporttest.NewFake()
	accInfo := responseWithError(kodakproto.CmdGetAccessoryInfo, kodakproto.SubTypeDefault, kodakproto.ErrCoverOpen)
	fake.QueueResponse(kodakproto.BuildGetAccessoryInfo(false)[0:8], accInfo)

	sess := New(transport.Device{Address: "AA:BB:CC:DD:EE:FF"}, false, Options{}, fakeDialer(fake))
	_ = sess.Connect()
	err := sess.Initialize()
	if !zerr.Of(err, zerr.KindCoverOpen) {
		t.Fatalf("Initialize error = %v, want KindCoverOpen", err)
	}
	if sess.State() != StateFailed {
		t.Fatalf("state = %v, want Failed", sess.State())
	}
}

func TestPrintRefusesWhenBatteryBelowMinimum(t *testing.T) {
	sess, fake := newReadySession(t, 20)

	err := sess.Print(validKodakJPEG(), 1)
	if !zerr.Of(err, zerr.KindBatteryTooLow) {
		t.Fatalf("Print error = %v, want KindBatteryTooLow", err)
	}
	for _, sent := range fake.Sent {
		if sent[6] == kodakproto.CmdPrintReady && sent[7] == kodakproto.SubTypePrintReady {
			t.Fatalf("PrintReady should not have been sent when battery is too low")
		}
	}
}

func TestPrintSendsExpectedChunkSizes(t *testing.T) {
	sess, fake := newReadySession(t, 80)

	fake.QueueResponse(kodakproto.BuildGetPageType()[0:8], responseWithError(kodakproto.CmdGetPageType, kodakproto.SubTypeDefault, kodakproto.ErrSuccess))
	readyPkt, _ := kodakproto.BuildPrintReady(0, 1)
	fake.QueueResponse(readyPkt[0:8], responseWithError(kodakproto.CmdPrintReady, kodakproto.SubTypePrintReady, kodakproto.ErrSuccess))

	// 10000-byte payload -> 4096, 4096, 1808 chunks (seed scenario 5).
	data := make([]byte, 10000)
	copy(data[0:2], []byte{0xFF, 0xD8})
	copy(data[len(data)-2:], []byte{0xFF, 0xD9})

	start := time.Now()
	if err := sess.Print(data, 1); err != nil {
		t.Fatalf("Print: %v", err)
	}
	elapsed := time.Since(start)

	var chunkSizes []int
	for _, sent := range fake.Sent {
		if len(sent) != kodakproto.PacketSize {
			chunkSizes = append(chunkSizes, len(sent))
		}
	}
	want := []int{4096, 4096, 1808}
	if len(chunkSizes) != len(want) {
		t.Fatalf("chunk count = %d, want %d (%v)", len(chunkSizes), len(want), chunkSizes)
	}
	for i, w := range want {
		if chunkSizes[i] != w {
			t.Errorf("chunk %d size = %d, want %d", i, chunkSizes[i], w)
		}
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 40ms for 2 inter-chunk delays", elapsed)
	}
	if sess.State() != StateInitialized {
		t.Fatalf("state = %v, want Initialized after successful print", sess.State())
	}
}

func TestReconnectReinitializes(t *testing.T) {
	sess, fake := newReadySession(t, 80)
	_ = fake.Close()

	// A fresh dial should succeed and reinitialize.
	fresh := transporttest.NewFake()
	accInfo := responseWithError(kodakproto.CmdGetAccessoryInfo, kodakproto.SubTypeDefault, kodakproto.ErrSuccess)
	accInfo[12] = 70
	fresh.QueueResponse(kodakproto.BuildGetAccessoryInfo(false)[0:8], accInfo)
	sess.dial = fakeDialer(fresh)
	sess.SetReconnectBackoff(0)

	if err := sess.Reconnect(); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if sess.State() != StateInitialized {
		t.Fatalf("state = %v, want Initialized", sess.State())
	}
	if sess.battery != 70 {
		t.Fatalf("battery = %d, want 70", sess.battery)
	}
}

func TestOperationsRejectedBeforeInitialize(t *testing.T) {
	fake := transporttest.NewFake()
	sess := New(transport.Device{Address: "AA:BB:CC:DD:EE:FF"}, false, Options{}, fakeDialer(fake))
	if err := sess.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	tests := []struct {
		name string
		op   func() error
	}{
		{"Print", func() error { return sess.Print(validKodakJPEG(), 1) }},
		{"Status", func() error { _, err := sess.Status(); return err }},
		{"Settings", func() error { _, err := sess.Settings(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			if !zerr.Of(err, zerr.KindInvalidState) {
				t.Fatalf("%s error = %v, want KindInvalidState", tt.name, err)
			}
		})
	}
}

func TestOptionsMinBatteryOverrideIsHonored(t *testing.T) {
	fake := transporttest.NewFake()
	accInfo := responseWithError(kodakproto.CmdGetAccessoryInfo, kodakproto.SubTypeDefault, kodakproto.ErrSuccess)
	accInfo[12] = 20
	fake.QueueResponse(kodakproto.BuildGetAccessoryInfo(false)[0:8], accInfo)

	sess := New(transport.Device{Address: "AA:BB:CC:DD:EE:FF"}, false, Options{MinBattery: 10}, fakeDialer(fake))
	if err := sess.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sess.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	batteryCheck := responseWithError(kodakproto.CmdGetAccessoryInfo, kodakproto.SubTypeDefault, kodakproto.ErrSuccess)
	batteryCheck[12] = 20
	fake.QueueResponse(kodakproto.BuildGetAccessoryInfo(false)[0:8], batteryCheck)
	fake.QueueResponse(kodakproto.BuildGetPageType()[0:8], responseWithError(kodakproto.CmdGetPageType, kodakproto.SubTypeDefault, kodakproto.ErrSuccess))
	readyPkt, _ := kodakproto.BuildPrintReady(0, 1)
	fake.QueueResponse(readyPkt[0:8], responseWithError(kodakproto.CmdPrintReady, kodakproto.SubTypePrintReady, kodakproto.ErrSuccess))

	if err := sess.Print(validKodakJPEG(), 1); err != nil {
		t.Fatalf("Print should succeed at 20%% battery with MinBattery lowered to 10%%: %v", err)
	}
}

func validKodakJPEG() []byte {
	data := make([]byte, 64)
	copy(data[0:2], []byte{0xFF, 0xD8})
	copy(data[len(data)-2:], []byte{0xFF, 0xD9})
	return data
}
