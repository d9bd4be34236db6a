package locationlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/driftsync/internal/dependencies/mocks"
	"github.com/mcoot/driftsync/internal/model"
	"github.com/mcoot/driftsync/internal/testutil"
)

type LogSuite struct {
	suite.Suite
	clock *mocks.MockClock
	log   *Log
}

func TestLogSuite(t *testing.T) {
	suite.Run(t, new(LogSuite))
}

func (s *LogSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s.log = New(s.clock, Config{MaxStoredUpdates: 5}, testutil.NopLogger())
}

func (s *LogSuite) appendN(n int) []int64 {
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		entity := model.Entity{ID: 1, Position: model.Vec3{Z: float64(i)}}
		ids = append(ids, s.log.Append("alice", entity))
	}
	return ids
}

func (s *LogSuite) TestAppendAssignsStrictlyIncreasingIDs() {
	ids := s.appendN(3)
	s.Equal([]int64{1, 2, 3}, ids)
	s.Equal(int64(3), s.log.CurrentUpdateID())
}

func (s *LogSuite) TestCurrentUpdateIDIsZeroWhenEmpty() {
	s.Equal(int64(0), s.log.CurrentUpdateID())
	s.Equal(int64(1), s.log.MinAvailableUpdateID())
}

func (s *LogSuite) TestUpdatesSinceReturnsEntriesAfterCursor() {
	s.appendN(4)

	entries, err := s.log.UpdatesSince(2)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(int64(3), entries[0].UpdateID)
	s.Equal(int64(4), entries[1].UpdateID)
}

func (s *LogSuite) TestUpdatesSinceFromZeroReturnsEverythingRetained() {
	s.appendN(3)

	entries, err := s.log.UpdatesSince(0)
	s.Require().NoError(err)
	s.Len(entries, 3)
}

func (s *LogSuite) TestUpdatesSinceAtHeadReturnsNothing() {
	s.appendN(3)

	entries, err := s.log.UpdatesSince(3)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *LogSuite) TestTrimRaisesWatermark() {
	// Cap is 5; the 7th append evicts ids 1 and 2
	s.appendN(7)

	s.Equal(int64(3), s.log.MinAvailableUpdateID())

	entries, err := s.log.UpdatesSince(3)
	s.Require().NoError(err)
	s.Require().Len(entries, 4)
	s.Equal(int64(4), entries[0].UpdateID)
	s.Equal(int64(7), entries[3].UpdateID)
}

func (s *LogSuite) TestStaleCursorBelowWatermark() {
	s.appendN(7)

	_, err := s.log.UpdatesSince(2)
	s.ErrorIs(err, model.ErrStaleCursor)
}

func (s *LogSuite) TestCursorAtWatermarkIsServable() {
	s.appendN(7)

	// minAvailableID is 3; a client that last saw id 3 has missed nothing
	// that was trimmed
	entries, err := s.log.UpdatesSince(3)
	s.Require().NoError(err)
	s.Len(entries, 4)
}

func (s *LogSuite) TestZeroCursorAfterTrimIsNotStale() {
	s.appendN(7)

	// lastUpdateID == 0 means "give me what you have", never a resync error
	entries, err := s.log.UpdatesSince(0)
	s.Require().NoError(err)
	s.Len(entries, 5)
}

func (s *LogSuite) TestEntriesRecordClockTime() {
	s.appendN(1)
	s.clock.Advance(10 * time.Second)
	s.appendN(1)

	entries, err := s.log.UpdatesSince(0)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(10*time.Second, entries[1].RecordedAt.Sub(entries[0].RecordedAt))
}
