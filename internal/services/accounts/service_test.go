package accounts

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/driftsync/internal/dependencies/mocks"
	"github.com/mcoot/driftsync/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	clock   *mocks.MockClock
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s.service = New(s.clock, testutil.NopLogger())
}

// Register tests

func (s *ServiceSuite) TestRegisterSucceeds() {
	s.Require().NoError(s.service.Register("alice", "password123"))
	s.True(s.service.UserExists("alice"))
	s.Equal(1, s.service.Count())
}

func (s *ServiceSuite) TestRegisterRejectsDuplicateUsername() {
	s.Require().NoError(s.service.Register("alice", "password123"))
	s.ErrorIs(s.service.Register("alice", "different"), ErrUsernameExists)
}

func (s *ServiceSuite) TestRegisterUsernamesAreCaseInsensitive() {
	s.Require().NoError(s.service.Register("Alice", "password123"))
	s.ErrorIs(s.service.Register("ALICE", "password123"), ErrUsernameExists)
	s.True(s.service.UserExists("alice"))
}

func (s *ServiceSuite) TestRegisterValidatesUsername() {
	s.ErrorIs(s.service.Register("", "password123"), ErrUsernameEmpty)
	s.ErrorIs(s.service.Register("ab", "password123"), ErrUsernameTooShort)
	s.ErrorIs(s.service.Register("thisusernameiswaytoolong", "password123"), ErrUsernameTooLong)
	s.ErrorIs(s.service.Register("bad\x00name", "password123"), ErrUsernameInvalid)
}

func (s *ServiceSuite) TestRegisterValidatesPassword() {
	s.ErrorIs(s.service.Register("alice", ""), ErrPasswordEmpty)
	s.ErrorIs(s.service.Register("alice", "short"), ErrPasswordTooShort)
	s.ErrorIs(s.service.Register("alice", strings.Repeat("a", MaxPasswordLength+1)), ErrPasswordTooLong)
}

// ValidateCredentials tests

func (s *ServiceSuite) TestValidateCredentialsSucceeds() {
	s.Require().NoError(s.service.Register("alice", "password123"))
	s.True(s.service.ValidateCredentials("alice", "password123"))
}

func (s *ServiceSuite) TestValidateCredentialsIsCaseInsensitiveOnUsername() {
	s.Require().NoError(s.service.Register("alice", "password123"))
	s.True(s.service.ValidateCredentials("ALICE", "password123"))
}

func (s *ServiceSuite) TestValidateCredentialsRejectsWrongPassword() {
	s.Require().NoError(s.service.Register("alice", "password123"))
	s.False(s.service.ValidateCredentials("alice", "wrongpassword"))
}

func (s *ServiceSuite) TestValidateCredentialsRejectsUnknownUser() {
	s.False(s.service.ValidateCredentials("nobody", "password123"))
}

func (s *ServiceSuite) TestValidateCredentialsRejectsEmptyInput() {
	s.False(s.service.ValidateCredentials("", ""))
}
