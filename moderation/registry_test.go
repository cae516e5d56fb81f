package moderation

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/akinalpfdn/dlsupervisor/classifier"
)

type fakeSink struct {
	mu  sync.Mutex
	cmd []string
}

func (f *fakeSink) Send(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmd = append(f.cmd, line)
	return nil
}

func (f *fakeSink) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.cmd))
	copy(out, f.cmd)
	return out
}

type RegistrySuite struct {
	suite.Suite
	dir  string
	sink *fakeSink
	reg  *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.sink = &fakeSink{}

	forbiddenPath := filepath.Join(s.dir, "forbidden_commands.list")
	s.Require().NoError(SaveForbiddenRules(forbiddenPath, []ForbiddenRule{
		{SubstringKey: "killall", BanHours: 24},
		{SubstringKey: "op ", BanHours: 0},
	}))

	reg, err := New(
		filepath.Join(s.dir, "players.list"),
		filepath.Join(s.dir, "banned.list"),
		forbiddenPath,
		s.sink,
	)
	s.Require().NoError(err)
	s.reg = reg
}

func (s *RegistrySuite) TestJoinAddsKnownAndOnline() {
	s.reg.OnEvent(classifier.Event{Kind: classifier.Join, Player: "Alice", ClientInfo: "fabric", Timestamp: time.Now()})

	s.Contains(s.reg.ListPlayers(), "Alice")
	s.True(s.reg.IsOnline("Alice"))
}

func (s *RegistrySuite) TestLeaveRemovesOnlineButKeepsKnown() {
	s.reg.OnEvent(classifier.Event{Kind: classifier.Join, Player: "Alice", Timestamp: time.Now()})
	s.reg.OnEvent(classifier.Event{Kind: classifier.Leave, Player: "Alice", Timestamp: time.Now()})

	s.False(s.reg.IsOnline("Alice"))
	s.Contains(s.reg.ListPlayers(), "Alice")
}

func (s *RegistrySuite) TestForbiddenCommandTriggersBan() {
	s.reg.OnEvent(classifier.Event{Kind: classifier.Join, Player: "Alice", Timestamp: time.Now()})
	s.reg.OnEvent(classifier.Event{Kind: classifier.Command, Player: "Alice", Content: "/kill all", Timestamp: time.Now()})

	s.True(s.reg.IsBanned("Alice"))

	sent := s.sink.sent()
	s.Require().Len(sent, 1)
	s.Contains(sent[0], "ban Alice ")
}

func (s *RegistrySuite) TestUnknownPlayerCommandDoesNotBan() {
	// no Join happened for Bob yet
	s.reg.OnEvent(classifier.Event{Kind: classifier.Command, Player: "Bob", Content: "/killall", Timestamp: time.Now()})
	s.False(s.reg.IsBanned("Bob"))
}

func (s *RegistrySuite) TestBanTwiceIsIdempotentOnMap() {
	s.reg.Ban("Carol", "first reason", 1)
	s.reg.Ban("Carol", "second reason", 2)

	banned := s.reg.ListBanned()
	s.Require().Len(banned, 1)
	s.Equal("second reason", banned[0].Reason)
}

func (s *RegistrySuite) TestPardonRemovesRecordAndSendsCommand() {
	s.reg.Ban("Dave", "test", 0)
	s.True(s.reg.IsBanned("Dave"))

	ok := s.reg.Pardon("Dave")
	s.True(ok)
	s.False(s.reg.IsBanned("Dave"))

	sent := s.sink.sent()
	s.Contains(sent[len(sent)-1], "pardon Dave")
}

func (s *RegistrySuite) TestPardonUnknownReturnsFalse() {
	s.False(s.reg.Pardon("Ghost"))
}

func (s *RegistrySuite) TestPermanentBanUsesSentinelOnSave() {
	s.reg.Ban("Eve", "perm", 0)
	s.Require().NoError(s.reg.Save())

	reg2, err := New(
		filepath.Join(s.dir, "players.list"),
		filepath.Join(s.dir, "banned.list"),
		filepath.Join(s.dir, "forbidden_commands.list"),
		s.sink,
	)
	s.Require().NoError(err)

	banned := reg2.ListBanned()
	s.Require().Len(banned, 1)
	s.True(banned[0].Permanent)
	s.Equal("Eve", banned[0].Name)
}

func (s *RegistrySuite) TestSaveLoadRoundTripPreservesRecords() {
	s.reg.Ban("Frank", "temp ban", 5)
	s.Require().NoError(s.reg.Save())

	reloaded, err := New(
		filepath.Join(s.dir, "players.list"),
		filepath.Join(s.dir, "banned.list"),
		filepath.Join(s.dir, "forbidden_commands.list"),
		s.sink,
	)
	s.Require().NoError(err)

	banned := reloaded.ListBanned()
	s.Require().Len(banned, 1)
	s.Equal("Frank", banned[0].Name)
	s.Equal("temp ban", banned[0].Reason)
	s.False(banned[0].Permanent)
	s.WithinDuration(s.reg.ListBanned()[0].UnbansAt, banned[0].UnbansAt, time.Second)
}

func (s *RegistrySuite) TestFindFirstKnownPlayerReturnsEarliestMatch() {
	s.reg.OnEvent(classifier.Event{Kind: classifier.Join, Player: "Zed", Timestamp: time.Now()})
	s.reg.OnEvent(classifier.Event{Kind: classifier.Join, Player: "Amy", Timestamp: time.Now()})

	found := s.reg.FindFirstKnownPlayer("hello Amy, hello Zed")
	s.Equal("Amy", found)
}
