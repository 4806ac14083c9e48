package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quizbattle/quizbattle-go/internal/dependencies/mocks"
	"github.com/quizbattle/quizbattle-go/internal/model"
	"github.com/quizbattle/quizbattle-go/internal/store/memory"
	"github.com/quizbattle/quizbattle-go/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	clk := mocks.NewMockClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	s.service = New(s.storage, clk, DefaultConfig(), testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ServiceSuite) TestAuthenticateEmptyToken() {
	_, err := s.service.Authenticate(s.ctx, "")
	s.ErrorIs(err, model.ErrUnauthorized)
}

func (s *ServiceSuite) TestAuthenticateUnknownToken() {
	_, err := s.service.Authenticate(s.ctx, "nope")
	s.ErrorIs(err, model.ErrUnauthorized)
}

func (s *ServiceSuite) TestCreateAndAuthenticate() {
	created, err := s.service.Create(s.ctx, "user-1", "device-1", "10.0.0.1", "test-agent")
	s.Require().NoError(err)
	s.Len(created.Token, 64)

	got, err := s.service.Authenticate(s.ctx, created.Token)
	s.Require().NoError(err)
	s.Equal(model.UserID("user-1"), got.UserID)
	s.Equal("device-1", got.DeviceID)
}

func (s *ServiceSuite) TestDestroy() {
	created, err := s.service.Create(s.ctx, "user-1", "", "", "")
	s.Require().NoError(err)

	s.Require().NoError(s.service.Destroy(s.ctx, created.Token))

	_, err = s.service.Authenticate(s.ctx, created.Token)
	s.ErrorIs(err, model.ErrUnauthorized)
}

func (s *ServiceSuite) TestConnectionLimit() {
	s.Require().NoError(s.service.TrackConnection(s.ctx, "user-1"))

	// Default limit is one; second connection refused without counting
	err := s.service.TrackConnection(s.ctx, "user-1")
	s.ErrorIs(err, model.ErrMaxConnections)

	s.service.ReleaseConnection(s.ctx, "user-1")
	s.Require().NoError(s.service.TrackConnection(s.ctx, "user-1"))
}

func (s *ServiceSuite) TestReleaseConnectionIdempotent() {
	s.service.ReleaseConnection(s.ctx, "user-never-connected")
	s.Require().NoError(s.service.TrackConnection(s.ctx, "user-never-connected"))
}
