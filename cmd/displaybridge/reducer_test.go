package main

import (
	"testing"
	"time"
)

func testDisplayConfig() DisplayConfig {
	return DisplayConfig{
		ActiveBrightness: 159,
		DimBrightness:    32,
		IdleWindow:       5 * time.Second,
	}
}

func playback(volume int, mute bool, status string) PlaybackEvent {
	return PlaybackEvent{
		Volume: Present(volume),
		Mute:   Present(mute),
		Status: Present(status),
		At:     time.Unix(1000, 0).UTC(),
	}
}

// sentMessages extracts CmdSendDisplay messages from a reduce result.
func sentMessages(rr ReduceResult) []DisplayMessage {
	var out []DisplayMessage
	for _, c := range rr.Commands {
		if s, ok := c.(CmdSendDisplay); ok {
			out = append(out, s.Message)
		}
	}
	return out
}

func armCommands(rr ReduceResult) []CmdArmIdle {
	var out []CmdArmIdle
	for _, c := range rr.Commands {
		if a, ok := c.(CmdArmIdle); ok {
			out = append(out, a)
		}
	}
	return out
}

func TestStatusToCode(t *testing.T) {
	tests := []struct {
		status string
		want   int
	}{
		{"play", 101},
		{"pause", 102},
		{"stop", 103},
		{"", 100},
		{"PLAY", 100},
		{"buffering", 100},
		{"unknown", 100},
	}
	for _, tt := range tests {
		if got := statusToCode(tt.status); got != tt.want {
			t.Errorf("statusToCode(%q) = %d, want %d", tt.status, got, tt.want)
		}
	}
}

func TestVolumeCode_MuteAlwaysWins(t *testing.T) {
	for v := 0; v <= 100; v++ {
		got := volumeCode(Present(v), Present(true), Present("play"))
		if got != codeMute {
			t.Fatalf("volume=%d mute=true: expected %d, got %d", v, codeMute, got)
		}
	}
}

func TestVolumeCode_UnmutedIsVolume(t *testing.T) {
	for v := 0; v <= 100; v++ {
		got := volumeCode(Present(v), Present(false), Present("pause"))
		if got != v {
			t.Fatalf("volume=%d mute=false: expected %d, got %d", v, v, got)
		}
	}
}

func TestVolumeCode_AbsentVolumeFallsBackToStatus(t *testing.T) {
	if got := volumeCode(Absent[int](), Present(false), Present("pause")); got != codePause {
		t.Fatalf("expected %d, got %d", codePause, got)
	}
	if got := volumeCode(Absent[int](), Absent[bool](), Absent[string]()); got != codeUnknown {
		t.Fatalf("expected %d, got %d", codeUnknown, got)
	}
}

func TestReduce_FirstPlayStatus(t *testing.T) {
	cfg := testDisplayConfig()
	s := &BridgeState{}

	// Seed volume/mute so only the status transition null -> play is under test.
	s.Volume = Present(50)
	s.Mute = Present(false)

	rr := Reduce(s, playback(50, false, "play"), cfg)

	msgs := sentMessages(rr)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if want := (DisplayMessage{BmpNumber: 101, Brightness: 159}); msgs[0] != want {
		t.Fatalf("expected %+v, got %+v", want, msgs[0])
	}
}

func TestReduce_FirstEventTreatsEverythingAsChanged(t *testing.T) {
	cfg := testDisplayConfig()

	rr := Reduce(&BridgeState{}, playback(50, false, "play"), cfg)

	// Status and volume both changed: one message, volume code wins.
	msgs := sentMessages(rr)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 combined message, got %d", len(msgs))
	}
	if msgs[0].BmpNumber != 50 || msgs[0].Brightness != 159 {
		t.Fatalf("expected bmp=50 brightness=159, got %+v", msgs[0])
	}
	if v, ok := rr.State.Status.Get(); !ok || v != "play" {
		t.Fatalf("expected cached status play, got %q (present=%v)", v, ok)
	}
	if v, ok := rr.State.Volume.Get(); !ok || v != 50 {
		t.Fatalf("expected cached volume 50, got %d (present=%v)", v, ok)
	}
}

func TestReduce_VolumeChangeWhilePlaying(t *testing.T) {
	cfg := testDisplayConfig()
	s := &BridgeState{}
	rr := Reduce(s, playback(50, false, "play"), cfg)

	rr = Reduce(rr.State, playback(70, false, "play"), cfg)

	msgs := sentMessages(rr)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if want := (DisplayMessage{BmpNumber: 70, Brightness: 159}); msgs[0] != want {
		t.Fatalf("expected %+v, got %+v", want, msgs[0])
	}
}

func TestReduce_MuteToggle(t *testing.T) {
	cfg := testDisplayConfig()
	rr := Reduce(&BridgeState{}, playback(70, false, "play"), cfg)

	rr = Reduce(rr.State, playback(70, true, "play"), cfg)

	msgs := sentMessages(rr)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if want := (DisplayMessage{BmpNumber: 104, Brightness: 159}); msgs[0] != want {
		t.Fatalf("expected %+v, got %+v", want, msgs[0])
	}
	if cmd := rr.Commands[0].(CmdSendDisplay); cmd.Reason != "mute" {
		t.Fatalf("expected reason mute, got %q", cmd.Reason)
	}
}

func TestReduce_IdempotentRepeatStillRearms(t *testing.T) {
	cfg := testDisplayConfig()
	ev := playback(40, false, "pause")

	rr := Reduce(&BridgeState{}, ev, cfg)
	if len(sentMessages(rr)) != 1 {
		t.Fatalf("expected first event to send")
	}
	firstArm := armCommands(rr)
	if len(firstArm) != 1 {
		t.Fatalf("expected 1 CmdArmIdle, got %d", len(firstArm))
	}

	rr = Reduce(rr.State, ev, cfg)
	if got := len(sentMessages(rr)); got != 0 {
		t.Fatalf("expected no message for repeated state, got %d", got)
	}
	secondArm := armCommands(rr)
	if len(secondArm) != 1 {
		t.Fatalf("expected idle timer re-armed on repeated state, got %d arms", len(secondArm))
	}
	if secondArm[0].Gen <= firstArm[0].Gen {
		t.Fatalf("expected a newer idle generation, got %d after %d", secondArm[0].Gen, firstArm[0].Gen)
	}
	if secondArm[0].After != cfg.IdleWindow {
		t.Fatalf("expected idle window %s, got %s", cfg.IdleWindow, secondArm[0].After)
	}
}

func TestReduce_StatusOnlyLeavesVolumeMuteCache(t *testing.T) {
	cfg := testDisplayConfig()
	rr := Reduce(&BridgeState{}, playback(30, true, "play"), cfg)

	rr = Reduce(rr.State, playback(30, true, "pause"), cfg)

	msgs := sentMessages(rr)
	if len(msgs) != 1 || msgs[0].BmpNumber != codePause {
		t.Fatalf("expected pause icon, got %+v", msgs)
	}
	if v, _ := rr.State.Volume.Get(); v != 30 {
		t.Fatalf("volume cache touched: %d", v)
	}
	if m, _ := rr.State.Mute.Get(); !m {
		t.Fatalf("mute cache touched")
	}
}

func TestReduce_VolumeOnlyLeavesStatusCache(t *testing.T) {
	cfg := testDisplayConfig()
	rr := Reduce(&BridgeState{}, playback(30, false, "stop"), cfg)

	ev := playback(31, false, "stop")
	ev.Status = Present("stop")
	rr = Reduce(rr.State, ev, cfg)

	if st, _ := rr.State.Status.Get(); st != "stop" {
		t.Fatalf("status cache changed: %q", st)
	}
	msgs := sentMessages(rr)
	if len(msgs) != 1 || msgs[0].BmpNumber != 31 {
		t.Fatalf("expected volume 31, got %+v", msgs)
	}
}

func TestReduce_CombinedChangeSendsOneMessageVolumeWins(t *testing.T) {
	cfg := testDisplayConfig()
	rr := Reduce(&BridgeState{}, playback(20, false, "play"), cfg)

	rr = Reduce(rr.State, playback(25, false, "pause"), cfg)

	msgs := sentMessages(rr)
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(msgs))
	}
	if msgs[0].BmpNumber != 25 || msgs[0].Brightness != 159 {
		t.Fatalf("expected bmp=25 brightness=159, got %+v", msgs[0])
	}
	// Status was still cached even though its code was overwritten.
	if st, _ := rr.State.Status.Get(); st != "pause" {
		t.Fatalf("expected cached status pause, got %q", st)
	}
}

func TestReduce_IdleDimUsesCachedStatus(t *testing.T) {
	cfg := testDisplayConfig()
	rr := Reduce(&BridgeState{}, playback(70, false, "play"), cfg)
	rr = Reduce(rr.State, playback(70, true, "play"), cfg)

	arms := armCommands(rr)
	if len(arms) != 1 {
		t.Fatalf("expected 1 arm, got %d", len(arms))
	}

	rr = Reduce(rr.State, IdleTimeout{Gen: arms[0].Gen, At: time.Unix(1005, 0)}, cfg)

	msgs := sentMessages(rr)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 dim message, got %d", len(msgs))
	}
	if want := (DisplayMessage{BmpNumber: 101, Brightness: 32}); msgs[0] != want {
		t.Fatalf("expected %+v, got %+v", want, msgs[0])
	}
	if len(armCommands(rr)) != 0 {
		t.Fatalf("dim path must not re-arm the idle timer")
	}
}

func TestReduce_AbsentVolumeReportsStatusReason(t *testing.T) {
	cfg := testDisplayConfig()
	rr := Reduce(&BridgeState{}, playback(30, false, "pause"), cfg)

	ev := playback(30, false, "pause")
	ev.Volume = Absent[int]()
	rr = Reduce(rr.State, ev, cfg)

	if len(rr.Commands) == 0 {
		t.Fatalf("expected a send for the missing volume")
	}
	cmd, ok := rr.Commands[0].(CmdSendDisplay)
	if !ok {
		t.Fatalf("expected CmdSendDisplay, got %T", rr.Commands[0])
	}
	if cmd.Message.BmpNumber != codePause || cmd.Reason != "status" {
		t.Fatalf("expected pause icon with reason status, got %+v reason=%q", cmd.Message, cmd.Reason)
	}
	if bc := rr.Broadcasts[0].(BroadcastDisplayChanged); bc.Reason != "status" {
		t.Fatalf("expected mirror reason status, got %q", bc.Reason)
	}
}

func TestVolumeReason(t *testing.T) {
	tests := []struct {
		volume Observed[int]
		mute   Observed[bool]
		want   string
	}{
		{Present(40), Present(true), "mute"},
		{Absent[int](), Present(true), "mute"},
		{Present(40), Present(false), "volume"},
		{Present(40), Absent[bool](), "volume"},
		{Absent[int](), Present(false), "status"},
		{Absent[int](), Absent[bool](), "status"},
	}
	for _, tt := range tests {
		if got := volumeReason(tt.volume, tt.mute); got != tt.want {
			t.Errorf("volumeReason(%s, %s) = %q, want %q",
				formatObserved(tt.volume), formatObserved(tt.mute), got, tt.want)
		}
	}
}

func TestReduce_StaleIdleTimeoutIgnored(t *testing.T) {
	cfg := testDisplayConfig()
	rr := Reduce(&BridgeState{}, playback(10, false, "play"), cfg)
	stale := armCommands(rr)[0].Gen

	rr = Reduce(rr.State, playback(11, false, "play"), cfg)

	rr = Reduce(rr.State, IdleTimeout{Gen: stale}, cfg)
	if got := len(rr.Commands); got != 0 {
		t.Fatalf("expected stale idle timeout to be ignored, got %d commands", got)
	}
}

func TestReduce_IdleBeforeAnyStatusDimsUnknown(t *testing.T) {
	cfg := testDisplayConfig()
	s := &BridgeState{IdleGen: 3}

	rr := Reduce(s, IdleTimeout{Gen: 3}, cfg)

	msgs := sentMessages(rr)
	if len(msgs) != 1 || msgs[0] != (DisplayMessage{BmpNumber: 100, Brightness: 32}) {
		t.Fatalf("expected unknown icon dimmed, got %+v", msgs)
	}
}

func TestReduce_MissingFieldIsChange(t *testing.T) {
	cfg := testDisplayConfig()
	rr := Reduce(&BridgeState{}, playback(60, false, "play"), cfg)

	ev := playback(60, false, "play")
	ev.Status = Absent[string]()
	rr = Reduce(rr.State, ev, cfg)

	msgs := sentMessages(rr)
	if len(msgs) != 1 || msgs[0].BmpNumber != codeUnknown {
		t.Fatalf("expected a spurious unknown-status update, got %+v", msgs)
	}

	// Missing again: no longer a change.
	rr = Reduce(rr.State, ev, cfg)
	if got := len(sentMessages(rr)); got != 0 {
		t.Fatalf("expected no message for repeated missing field, got %d", got)
	}
}

func TestReduce_SourceConnectedRequestsState(t *testing.T) {
	rr := Reduce(&BridgeState{}, SourceConnected{Source: sourceVolumio}, testDisplayConfig())

	if !rr.State.Connected {
		t.Fatalf("expected connected state")
	}
	if len(rr.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(rr.Commands))
	}
	if _, ok := rr.Commands[0].(CmdRequestState); !ok {
		t.Fatalf("expected CmdRequestState, got %T", rr.Commands[0])
	}

	rr = Reduce(rr.State, SourceDisconnected{Source: sourceVolumio}, testDisplayConfig())
	if rr.State.Connected {
		t.Fatalf("expected disconnected state")
	}
}

func TestReduce_BroadcastsMirrorSends(t *testing.T) {
	cfg := testDisplayConfig()
	rr := Reduce(&BridgeState{}, playback(5, false, "stop"), cfg)

	if len(rr.Broadcasts) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(rr.Broadcasts))
	}
	bc, ok := rr.Broadcasts[0].(BroadcastDisplayChanged)
	if !ok {
		t.Fatalf("expected BroadcastDisplayChanged, got %T", rr.Broadcasts[0])
	}
	if bc.Message.BmpNumber != 5 || bc.Reason != "volume" {
		t.Fatalf("unexpected broadcast %+v", bc)
	}

	snap := rr.State.Snapshot()
	if !snap.Known || snap.Message != bc.Message {
		t.Fatalf("expected snapshot to carry last message, got %+v", snap)
	}
}

func TestReduce_SnapshotRequestEmitsPublish(t *testing.T) {
	reply := make(chan DisplaySnapshot, 1)
	rr := Reduce(&BridgeState{}, RequestDisplaySnapshot{Reply: reply}, testDisplayConfig())

	if len(rr.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(rr.Commands))
	}
	cmd, ok := rr.Commands[0].(CmdPublishSnapshot)
	if !ok {
		t.Fatalf("expected CmdPublishSnapshot, got %T", rr.Commands[0])
	}
	if cmd.Snapshot.Known {
		t.Fatalf("expected unknown snapshot before any send")
	}
}

func TestObserved_Equal(t *testing.T) {
	var unseen Observed[int]
	if unseen.Equal(Absent[int]()) {
		t.Errorf("unseen must not equal absent")
	}
	if unseen.Equal(Present(0)) {
		t.Errorf("unseen must not equal present zero")
	}
	if !Absent[int]().Equal(Absent[int]()) {
		t.Errorf("absent must equal absent")
	}
	if !Present(3).Equal(Present(3)) {
		t.Errorf("present 3 must equal present 3")
	}
	if Present(3).Equal(Present(4)) {
		t.Errorf("present 3 must not equal present 4")
	}
}
