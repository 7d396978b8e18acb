package engine_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/engine"
	"github.com/proecheng/dcim-platform-sub000/internal/hub"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

var thresholdCols = []string{
	"id", "point_id", "threshold_type", "threshold_value", "alarm_level", "alarm_message",
	"delay_seconds", "dead_band", "priority", "is_enabled", "created_at", "updated_at",
}

var alarmCols = []string{
	"id", "alarm_no", "point_id", "threshold_id", "alarm_level", "alarm_type", "alarm_message",
	"trigger_value", "threshold_value", "status", "acknowledged_by", "acknowledged_at", "ack_remark",
	"resolved_by", "resolved_at", "resolve_remark", "resolve_type", "duration_seconds",
	"is_notified", "notify_count", "created_at",
}

func setupEngine(t *testing.T) (*engine.AlarmEngine, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	eng := engine.NewAlarmEngine(
		repository.NewThresholdsRepository(db, logger),
		repository.NewAlarmsRepository(db, logger),
		setupStateManager(t),
		hub.NewHub(16, logger),
		nil,
		logger,
	)
	return eng, db, mock
}

// expectRules 每个采集周期先加载点位启用规则
func expectRules(mock sqlmock.Sqlmock, now time.Time) {
	mock.ExpectQuery(`FROM alarm_thresholds`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(thresholdCols).
			AddRow(int64(7), int64(42), models.ThresholdHigh, 80.0, models.AlarmLevelMajor, "温度越限",
				0, 1.0, 1, true, now, now))
}

func activeAlarmRow(createdAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(alarmCols).
		AddRow(int64(1), "ALM20250601100000AB12CD", int64(42), int64(7),
			models.AlarmLevelMajor, models.AlarmTypeThreshold, "温度越限",
			85.0, 80.0, models.AlarmStatusActive, nil, nil, nil,
			nil, nil, nil, nil, int64(0), false, 0, createdAt)
}

// 高限80回差1延时0的规则依次喂入 70→85→85→78→74：
// 只开一次报警，回到回差带下沿时自动恢复，之后保持正常。
func TestEvaluatePointTx_SingleAlarmLifecycle(t *testing.T) {
	eng, db, mock := setupEngine(t)
	ctx := context.Background()

	point := &models.Point{ID: 42, PointCode: "A1_SRV_AI_001", PointName: "机柜温度", PointType: models.PointTypeAI}
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	runCycle := func(prev, cur float64, now time.Time) *engine.EvaluateOutcome {
		t.Helper()
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		outcome, err := eng.EvaluatePointTx(ctx, tx, point, prev, cur, now)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
		return outcome
	}

	// 70→85：越限，去重查无在途报警，插入一条
	mock.ExpectBegin()
	expectRules(mock, t0)
	mock.ExpectQuery(`FROM alarms`).WithArgs(int64(42), int64(7)).
		WillReturnRows(sqlmock.NewRows(alarmCols))
	mock.ExpectQuery(`INSERT INTO alarms`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	outcome := runCycle(70, 85, t0)
	assert.Equal(t, models.PointStatusAlarm, outcome.Status)
	assert.Equal(t, models.AlarmLevelMajor, outcome.AlarmLevel)
	require.Len(t, outcome.PendingEvents, 1)
	assert.Equal(t, "open", outcome.PendingEvents[0].Event)
	assert.Equal(t, models.AlarmStatusActive, outcome.PendingEvents[0].Alarm.Status)

	// 85→85：仍越限，在途报警存在，不重复开
	mock.ExpectBegin()
	expectRules(mock, t0)
	mock.ExpectQuery(`FROM alarms`).WithArgs(int64(42), int64(7)).
		WillReturnRows(activeAlarmRow(t0))
	mock.ExpectCommit()

	outcome = runCycle(85, 85, t0.Add(5*time.Second))
	assert.Equal(t, models.PointStatusAlarm, outcome.Status)
	assert.Empty(t, outcome.PendingEvents)

	// 85→78：低于回差带下沿79，自动恢复在途报警
	mock.ExpectBegin()
	expectRules(mock, t0)
	mock.ExpectQuery(`FROM alarms`).WithArgs(int64(42), int64(7)).
		WillReturnRows(activeAlarmRow(t0))
	mock.ExpectExec(`UPDATE alarms SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	t3 := t0.Add(10 * time.Second)
	outcome = runCycle(85, 78, t3)
	assert.Equal(t, models.PointStatusNormal, outcome.Status)
	require.Len(t, outcome.PendingEvents, 1)
	resolved := outcome.PendingEvents[0]
	assert.Equal(t, "resolve", resolved.Event)
	assert.Equal(t, models.AlarmStatusResolved, resolved.Alarm.Status)
	assert.Equal(t, models.ResolveTypeAuto, resolved.Alarm.ResolveType)
	assert.Equal(t, int64(10), resolved.Alarm.DurationSeconds)

	// 78→74：保持正常，无在途报警，无事件
	mock.ExpectBegin()
	expectRules(mock, t0)
	mock.ExpectQuery(`FROM alarms`).WithArgs(int64(42), int64(7)).
		WillReturnRows(sqlmock.NewRows(alarmCols))
	mock.ExpectCommit()

	outcome = runCycle(78, 74, t0.Add(15*time.Second))
	assert.Equal(t, models.PointStatusNormal, outcome.Status)
	assert.Empty(t, outcome.PendingEvents)

	require.NoError(t, mock.ExpectationsWereMet())
}

// 延时窗口内不开报警，首次越限时间满延时后才落库
func TestEvaluatePointTx_DelayGate(t *testing.T) {
	eng, db, mock := setupEngine(t)
	ctx := context.Background()

	point := &models.Point{ID: 42, PointCode: "A1_SRV_AI_001", PointName: "机柜温度", PointType: models.PointTypeAI}
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	expectDelayedRules := func() {
		mock.ExpectQuery(`FROM alarm_thresholds`).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows(thresholdCols).
				AddRow(int64(7), int64(42), models.ThresholdHigh, 80.0, models.AlarmLevelMajor, "温度越限",
					10, 1.0, 1, true, t0, t0))
	}

	runCycle := func(prev, cur float64, now time.Time) *engine.EvaluateOutcome {
		t.Helper()
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		outcome, err := eng.EvaluatePointTx(ctx, tx, point, prev, cur, now)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
		return outcome
	}

	// 首次越限：延时未满，不查库不开报警
	mock.ExpectBegin()
	expectDelayedRules()
	mock.ExpectCommit()

	outcome := runCycle(70, 85, t0)
	assert.Equal(t, models.PointStatusNormal, outcome.Status)
	assert.Empty(t, outcome.PendingEvents)

	// 10秒后仍越限：满延时，开报警
	mock.ExpectBegin()
	expectDelayedRules()
	mock.ExpectQuery(`FROM alarms`).WithArgs(int64(42), int64(7)).
		WillReturnRows(sqlmock.NewRows(alarmCols))
	mock.ExpectQuery(`INSERT INTO alarms`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectCommit()

	outcome = runCycle(85, 85, t0.Add(10*time.Second))
	assert.Equal(t, models.PointStatusAlarm, outcome.Status)
	require.Len(t, outcome.PendingEvents, 1)
	assert.Equal(t, "open", outcome.PendingEvents[0].Event)

	require.NoError(t, mock.ExpectationsWereMet())
}
