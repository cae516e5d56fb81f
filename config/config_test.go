package config

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestLoadRequiresServerCommand() {
	_, err := Load(nil)
	s.Error(err)
}

func (s *ConfigSuite) TestLoadUsesDefaultPortWhenOmitted() {
	cfg, err := Load([]string{"./start.sh"})
	s.Require().NoError(err)
	s.Equal(8080, cfg.Server.Port)
	s.Equal("./start.sh", cfg.ServerCmd)
}

func (s *ConfigSuite) TestLoadParsesExplicitPort() {
	cfg, err := Load([]string{"./start.sh", "9999"})
	s.Require().NoError(err)
	s.Equal(9999, cfg.Server.Port)
}

func (s *ConfigSuite) TestLoadRejectsNonNumericPort() {
	_, err := Load([]string{"./start.sh", "not-a-port"})
	s.Error(err)
}

func (s *ConfigSuite) TestDataConfigDerivesFilePaths() {
	cfg, err := Load([]string{"./start.sh"})
	s.Require().NoError(err)

	s.Equal("./data/players.list", cfg.Data.PlayersPath())
	s.Equal("./data/banned.list", cfg.Data.BannedPath())
	s.Equal("./data/forbidden_commands.list", cfg.Data.ForbiddenPath())
	s.Equal("./data/requests.dat", cfg.Data.RequestsPath())
	s.Equal("./server/ops.json", cfg.Data.OpsPath())
}

func (s *ConfigSuite) TestLoadUsesDefaultCompactionThresholdWhenOmitted() {
	cfg, err := Load([]string{"./start.sh"})
	s.Require().NoError(err)
	s.Equal(4096, cfg.Sweep.CompactionThreshold)
}

func (s *ConfigSuite) TestLoadRejectsNonNumericCompactionThreshold() {
	s.T().Setenv("COMPACTION_THRESHOLD_BYTES", "not-a-number")
	_, err := Load([]string{"./start.sh"})
	s.Error(err)
}
