package app

import (
	"database/sql"

	autoDomain "github.com/funnelworks/funnel/internal/automations/domain"
	autoPersistence "github.com/funnelworks/funnel/internal/automations/infrastructure/persistence"
	crmDomain "github.com/funnelworks/funnel/internal/crm/domain"
	crmPersistence "github.com/funnelworks/funnel/internal/crm/infrastructure/persistence"
	"github.com/funnelworks/funnel/internal/notifications"
	notificationPersistence "github.com/funnelworks/funnel/internal/notifications/persistence"
	scoringDomain "github.com/funnelworks/funnel/internal/scoring/domain"
	scoringPersistence "github.com/funnelworks/funnel/internal/scoring/infrastructure/persistence"
	seqDomain "github.com/funnelworks/funnel/internal/sequences/domain"
	seqPersistence "github.com/funnelworks/funnel/internal/sequences/infrastructure/persistence"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories bundles every repository behind its domain interface so the
// rest of the container never cares which driver backs them.
type Repositories struct {
	Contacts   crmDomain.ContactRepository
	Activities crmDomain.ActivityRepository
	Tasks      crmDomain.TaskRepository
	Deals      crmDomain.DealRepository

	Scores scoringDomain.Repository

	Enrollments seqDomain.EnrollmentRepository
	Steps       seqDomain.StepRepository
	Messages    seqDomain.MessageRepository

	Rules      autoDomain.RuleRepository
	Executions autoDomain.ExecutionRepository

	Notifications notifications.Repository
}

func newSQLiteRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Contacts:   crmPersistence.NewSQLiteContactRepository(db),
		Activities: crmPersistence.NewSQLiteActivityRepository(db),
		Tasks:      crmPersistence.NewSQLiteTaskRepository(db),
		Deals:      crmPersistence.NewSQLiteDealRepository(db),

		Scores: scoringPersistence.NewSQLiteScoreRepository(db),

		Enrollments: seqPersistence.NewSQLiteEnrollmentRepository(db),
		Steps:       seqPersistence.NewSQLiteStepRepository(db),
		Messages:    seqPersistence.NewSQLiteMessageRepository(db),

		Rules:      autoPersistence.NewSQLiteRuleRepository(db),
		Executions: autoPersistence.NewSQLiteExecutionRepository(db),

		Notifications: notificationPersistence.NewSQLiteRepository(db),
	}
}

func newPostgresRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Contacts:   crmPersistence.NewPostgresContactRepository(pool),
		Activities: crmPersistence.NewPostgresActivityRepository(pool),
		Tasks:      crmPersistence.NewPostgresTaskRepository(pool),
		Deals:      crmPersistence.NewPostgresDealRepository(pool),

		Scores: scoringPersistence.NewPostgresScoreRepository(pool),

		Enrollments: seqPersistence.NewPostgresEnrollmentRepository(pool),
		Steps:       seqPersistence.NewPostgresStepRepository(pool),
		Messages:    seqPersistence.NewPostgresMessageRepository(pool),

		Rules:      autoPersistence.NewPostgresRuleRepository(pool),
		Executions: autoPersistence.NewPostgresExecutionRepository(pool),

		Notifications: notificationPersistence.NewPostgresRepository(pool),
	}
}
