package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-admin-api/internal/models"
	appErrors "github.com/noah-isme/training-admin-api/pkg/errors"
)

type batchFixture struct {
	svc       *BatchService
	repo      *memoryBatchRepo
	enquiries *memoryEnquiryRepo
	events    *recordingEvents
	metrics   *MetricsService
}

func newBatchFixture(t *testing.T, tx txProvider, batches []models.Batch, enquiries ...models.Enquiry) batchFixture {
	t.Helper()
	repo := newMemoryBatchRepo(batches...)
	enquiryRepo := newMemoryEnquiryRepo(enquiries...)
	events := &recordingEvents{}
	metrics := NewMetricsService()
	ids := newSequences()
	capacity := 12
	courses := memoryCourses{"fire safety": {ID: "course-1", Name: "Fire Safety", ClassCapacity: &capacity}}
	enquirySvc := NewEnquiryService(tx, enquiryRepo, courses, ids, nil, nil, events, metrics, nil)
	svc := NewBatchService(tx, repo, courses, ids, enquirySvc, nil, events, metrics, nil, 15)
	return batchFixture{svc: svc, repo: repo, enquiries: enquiryRepo, events: events, metrics: metrics}
}

func openBatch(id, number string, capacity int) models.Batch {
	return models.Batch{
		ID:            id,
		BatchID:       number,
		CourseName:    "Fire Safety",
		Session:       models.SessionMorning,
		ClassCapacity: capacity,
		Status:        models.BatchStatusDraft,
		Nominees:      models.ClientGroups{},
	}
}

func awaitingNomination(id, number, client string, requested int) models.Enquiry {
	return models.Enquiry{
		ID:        id,
		EnquiryID: number,
		Client:    client,
		Course:    "Fire Safety",
		Requested: requested,
		Status:    models.EnquiryStatusPendingNomination,
		StartDate: mustDate("2025-10-20"),
		EndDate:   mustDate("2025-10-20"),
	}
}

func TestBatchServiceCreateResolvesCapacity(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newBatchFixture(t, tx, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()
	fromCourse, err := f.svc.Create(context.Background(), CreateBatchRequest{CourseName: "Fire Safety"}, coordinatorActor)
	require.NoError(t, err)
	assert.Equal(t, "Batch-F-001", fromCourse.BatchID)
	assert.Equal(t, 12, fromCourse.ClassCapacity)
	assert.Equal(t, 12, fromCourse.Pending)
	assert.Equal(t, models.BatchStatusDraft, fromCourse.Status)
	require.NotNil(t, fromCourse.CourseRef)

	mock.ExpectBegin()
	mock.ExpectCommit()
	fallback, err := f.svc.Create(context.Background(), CreateBatchRequest{CourseName: "first aid"}, coordinatorActor)
	require.NoError(t, err)
	assert.Equal(t, "Batch-F-002", fallback.BatchID, "courses sharing an initial share a counter")
	assert.Equal(t, 15, fallback.ClassCapacity)

	explicit := 10
	mock.ExpectBegin()
	mock.ExpectCommit()
	custom, err := f.svc.Create(context.Background(), CreateBatchRequest{CourseName: "Welding", ClassCapacity: &explicit}, coordinatorActor)
	require.NoError(t, err)
	assert.Equal(t, "Batch-W-001", custom.BatchID)
	assert.Equal(t, 10, custom.ClassCapacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchServiceCreateRejectsBadLogistics(t *testing.T) {
	f := newBatchFixture(t, nil, nil)
	start, end := "10:00", "09:00"

	_, err := f.svc.Create(context.Background(), CreateBatchRequest{CourseName: "Fire Safety", StartTime: &start, EndTime: &end}, coordinatorActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Create(context.Background(), CreateBatchRequest{CourseName: "Fire Safety", Session: "Night"}, coordinatorActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBatchServiceCreateNormalizesClocks(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newBatchFixture(t, tx, nil)
	start, end := " 09:00", "12:30 "

	mock.ExpectBegin()
	mock.ExpectCommit()
	batch, err := f.svc.Create(context.Background(), CreateBatchRequest{CourseName: "Fire Safety", StartTime: &start, EndTime: &end}, coordinatorActor)
	require.NoError(t, err)
	require.NotNil(t, batch.StartTime)
	require.NotNil(t, batch.EndTime)
	assert.Equal(t, "09:00", *batch.StartTime)
	assert.Equal(t, "12:30", *batch.EndTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchServiceNominateSingleEnquiry(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newBatchFixture(t, tx,
		[]models.Batch{openBatch("b1", "Batch-F-001", 10)},
		awaitingNomination("e1", "ENQ-001", "Acme Oil", 5),
	)

	mock.ExpectBegin()
	mock.ExpectCommit()
	batch, err := f.svc.Nominate(context.Background(), "Batch-F-001", NominateRequest{
		ClientName: "Acme Oil",
		EnquiryID:  "ENQ-001",
		Trainees:   sampleTrainees("acme", 5),
	}, coordinatorActor)
	require.NoError(t, err)
	assert.Equal(t, 5, batch.Nominated)
	assert.Equal(t, 5, batch.Pending)
	assert.Equal(t, []string{"e1"}, batch.Enquiries)

	enquiry, err := f.enquiries.FindByID(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.EnquiryStatusNominated, enquiry.Status)
	assert.Equal(t, 5, enquiry.Nominated)
	require.NotNil(t, enquiry.BatchNumber)
	assert.Equal(t, "Batch-F-001", *enquiry.BatchNumber)
	assert.Equal(t, []string{models.ActivityNominated}, f.enquiries.actions("e1"))

	assert.Equal(t, []string{models.EventBatchNominated}, f.events.types())
	assert.Equal(t, uint64(1), f.metrics.Snapshot().NominationsAccepted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchServiceNominateTwoClientsFillBatch(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newBatchFixture(t, tx,
		[]models.Batch{openBatch("b1", "Batch-F-001", 10)},
		awaitingNomination("e1", "ENQ-001", "Acme Oil", 6),
		awaitingNomination("e2", "ENQ-002", "Gulf Air", 4),
	)

	mock.ExpectBegin()
	mock.ExpectCommit()
	batch, err := f.svc.Nominate(context.Background(), "b1", NominateRequest{ClientName: "Acme Oil", EnquiryID: "e1", Trainees: sampleTrainees("acme", 6)}, coordinatorActor)
	require.NoError(t, err)
	assert.Equal(t, 4, batch.Pending)

	mock.ExpectBegin()
	mock.ExpectCommit()
	batch, err = f.svc.Nominate(context.Background(), "b1", NominateRequest{ClientName: "Gulf Air", EnquiryID: "e2", Trainees: sampleTrainees("gulf", 4)}, coordinatorActor)
	require.NoError(t, err)
	assert.Equal(t, 10, batch.Nominated)
	assert.Equal(t, 0, batch.Pending)
	assert.Len(t, batch.Nominees, 2)
	assert.ElementsMatch(t, []string{"e1", "e2"}, batch.Enquiries)

	available, err := f.svc.FindAvailable(context.Background(), "Fire Safety")
	require.NoError(t, err)
	assert.Empty(t, available, "a full batch is no longer offered")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchServiceNominateReplacesClientGroup(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newBatchFixture(t, tx, []models.Batch{openBatch("b1", "Batch-F-001", 10)})

	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err := f.svc.Nominate(context.Background(), "b1", NominateRequest{ClientName: "Acme Oil", Trainees: sampleTrainees("acme", 4)}, coordinatorActor)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	batch, err := f.svc.Nominate(context.Background(), "b1", NominateRequest{ClientName: "acme oil", Trainees: sampleTrainees("acme", 2)}, coordinatorActor)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Nominated, "resubmitting a client replaces its group")
	assert.Len(t, batch.Nominees, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchServiceNominateLastSeatIsExclusive(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	seeded := openBatch("b1", "Batch-F-001", 3)
	seeded.Nominees = models.ClientGroups{{Name: "Acme Oil", Type: models.ClientTypeCompany, Students: sampleTrainees("acme", 2)}}
	f := newBatchFixture(t, tx, []models.Batch{seeded})

	mock.ExpectBegin()
	mock.ExpectCommit()
	batch, err := f.svc.Nominate(context.Background(), "b1", NominateRequest{ClientName: "Gulf Air", Trainees: sampleTrainees("gulf", 1)}, coordinatorActor)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Pending)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = f.svc.Nominate(context.Background(), "b1", NominateRequest{ClientName: "Kuwait Port", Trainees: sampleTrainees("port", 1)}, coordinatorActor)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErr.Code)
	details, ok := appErr.Details.(models.CapacityDetails)
	require.True(t, ok)
	assert.Equal(t, 3, details.Capacity)
	assert.Equal(t, 4, details.Requested)

	stored, err := f.repo.FindByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Nominated, "nominated never exceeds capacity")

	snapshot := f.metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.NominationsAccepted)
	assert.Equal(t, uint64(1), snapshot.NominationsRejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchServiceNominateRejectsClosedBatchAndWrongEnquiry(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	closed := openBatch("b2", "Batch-F-002", 10)
	closed.Status = models.BatchStatusInProgress
	draftEnquiry := awaitingNomination("e1", "ENQ-001", "Acme Oil", 5)
	draftEnquiry.Status = models.EnquiryStatusDraft
	f := newBatchFixture(t, tx, []models.Batch{openBatch("b1", "Batch-F-001", 10), closed}, draftEnquiry)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err := f.svc.Nominate(context.Background(), "b2", NominateRequest{ClientName: "Acme Oil", Trainees: sampleTrainees("acme", 1)}, coordinatorActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = f.svc.Nominate(context.Background(), "b1", NominateRequest{ClientName: "Acme Oil", EnquiryID: "e1", Trainees: sampleTrainees("acme", 1)}, coordinatorActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code, "only enquiries awaiting nomination accept trainees")

	stored, err := f.repo.FindByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Zero(t, stored.Nominated, "the roster rolls back with the enquiry")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchServiceNominateKeepsEnquiryInOneBatch(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newBatchFixture(t, tx,
		[]models.Batch{openBatch("b1", "Batch-F-001", 10), openBatch("b2", "Batch-F-002", 10)},
		awaitingNomination("e1", "ENQ-001", "Acme Oil", 5),
	)

	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err := f.svc.Nominate(context.Background(), "b1", NominateRequest{ClientName: "Acme Oil", EnquiryID: "ENQ-001", Trainees: sampleTrainees("acme", 5)}, coordinatorActor)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = f.svc.Nominate(context.Background(), "b2", NominateRequest{ClientName: "Acme Oil", EnquiryID: "ENQ-001", Trainees: sampleTrainees("acme", 5)}, coordinatorActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	second, err := f.svc.Get(context.Background(), "b2")
	require.NoError(t, err)
	assert.Zero(t, second.Nominated)
	assert.Empty(t, second.Enquiries)

	first, err := f.svc.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 5, first.Nominated)
	assert.Equal(t, []string{"e1"}, first.Enquiries)

	enquiry, err := f.enquiries.FindByID(context.Background(), "e1")
	require.NoError(t, err)
	require.NotNil(t, enquiry.BatchNumber)
	assert.Equal(t, "Batch-F-001", *enquiry.BatchNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchServiceNominateSameClientFromTwoEnquiries(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newBatchFixture(t, tx,
		[]models.Batch{openBatch("b1", "Batch-F-001", 10)},
		awaitingNomination("e1", "ENQ-001", "Acme Oil", 3),
		awaitingNomination("e2", "ENQ-002", "Acme Oil", 2),
	)

	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err := f.svc.Nominate(context.Background(), "b1", NominateRequest{ClientName: "Acme Oil", EnquiryID: "e1", Trainees: sampleTrainees("north", 3)}, coordinatorActor)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	batch, err := f.svc.Nominate(context.Background(), "b1", NominateRequest{ClientName: "Acme Oil", EnquiryID: "e2", Trainees: sampleTrainees("south", 2)}, coordinatorActor)
	require.NoError(t, err)
	assert.Equal(t, 5, batch.Nominated)
	assert.Len(t, batch.Nominees, 2)

	for _, ref := range []string{"e1", "e2"} {
		enquiry, err := f.enquiries.FindByID(context.Background(), ref)
		require.NoError(t, err)
		group, ok := batch.GroupFor(ref)
		require.True(t, ok)
		assert.Equal(t, len(group.Students), enquiry.Nominated, "enquiry %s matches its roster group", ref)
		assert.Len(t, enquiry.Nominees, enquiry.Nominated)
	}

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = f.svc.Nominate(context.Background(), "b1", NominateRequest{ClientName: "acme oil", Trainees: sampleTrainees("west", 1)}, coordinatorActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code, "groups held by an enquiry are not overwritten")

	stored, err := f.repo.FindByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Nominated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchServiceNominateRequiresMatchingCourse(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	firstAid := awaitingNomination("e1", "ENQ-001", "Acme Oil", 3)
	firstAid.Course = "First Aid"
	f := newBatchFixture(t, tx, []models.Batch{openBatch("b1", "Batch-F-001", 10)}, firstAid)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err := f.svc.Nominate(context.Background(), "b1", NominateRequest{ClientName: "Acme Oil", EnquiryID: "e1", Trainees: sampleTrainees("acme", 2)}, coordinatorActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	enquiry, err := f.enquiries.FindByID(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.EnquiryStatusPendingNomination, enquiry.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchServiceUpdateKeepsCapacityAboveRoster(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	seeded := openBatch("b1", "Batch-F-001", 10)
	seeded.Nominees = models.ClientGroups{{Name: "Acme Oil", Type: models.ClientTypeCompany, Students: sampleTrainees("acme", 6)}}
	f := newBatchFixture(t, tx, []models.Batch{seeded})

	tooSmall := 5
	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err := f.svc.Update(context.Background(), "b1", UpdateBatchRequest{ClassCapacity: &tooSmall}, coordinatorActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErrors.FromError(err).Code)

	capacity := 8
	session := models.SessionAfternoon
	day := "2025-11-02"
	mock.ExpectBegin()
	mock.ExpectCommit()
	updated, err := f.svc.Update(context.Background(), "b1", UpdateBatchRequest{ClassCapacity: &capacity, Session: &session, Date: &day}, coordinatorActor)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Pending)
	assert.Equal(t, models.SessionAfternoon, updated.Session)
	require.NotNil(t, updated.Date)
	assert.Equal(t, day, updated.Date.Format(models.DateLayout))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchServiceChangeStatusAndDelete(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	seeded := openBatch("b1", "Batch-F-001", 10)
	seeded.Nominees = models.ClientGroups{{Name: "Acme Oil", Type: models.ClientTypeCompany, Students: sampleTrainees("acme", 1)}}
	f := newBatchFixture(t, tx, []models.Batch{seeded})

	err := f.svc.Delete(context.Background(), "b1", adminActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = f.svc.ChangeStatus(context.Background(), "b1", ChangeBatchStatusRequest{Status: models.BatchStatusCompleted}, coordinatorActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	mock.ExpectBegin()
	mock.ExpectCommit()
	cancelled, err := f.svc.ChangeStatus(context.Background(), "b1", ChangeBatchStatusRequest{Status: models.BatchStatusCancelled}, coordinatorActor)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCancelled, cancelled.Status)

	require.NoError(t, f.svc.Delete(context.Background(), "b1", adminActor))
	_, err = f.svc.Get(context.Background(), "b1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchServiceFindAvailableRequiresCourse(t *testing.T) {
	f := newBatchFixture(t, nil, []models.Batch{openBatch("b1", "Batch-F-001", 10), openBatch("b2", "Batch-F-002", 10)})

	_, err := f.svc.FindAvailable(context.Background(), "  ")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	first, err := f.svc.FindAvailable(context.Background(), "Fire Safety")
	require.NoError(t, err)
	second, err := f.svc.FindAvailable(context.Background(), "Fire Safety")
	require.NoError(t, err)
	assert.Equal(t, first, second, "lookups have no side effects")
	require.Len(t, first, 2)
	assert.Equal(t, "Batch-F-001", first[0].BatchID)
}

func TestBatchServiceRosterExport(t *testing.T) {
	seeded := openBatch("b1", "Batch-F-001", 10)
	seeded.Nominees = models.ClientGroups{
		{Name: "Acme Oil", Type: models.ClientTypeCompany, Students: sampleTrainees("acme", 2)},
		{Name: "Noor", Type: models.ClientTypeIndividual, Students: sampleTrainees("noor", 1)},
	}
	f := newBatchFixture(t, nil, []models.Batch{seeded})

	file, err := f.svc.Roster(context.Background(), "b1", "CSV")
	require.NoError(t, err)
	assert.Equal(t, "Batch-F-001-roster.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	lines := strings.Split(strings.TrimSpace(string(file.Body)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "#,Client,Client Type,Civil ID,Name,Contact Number,Email,Language", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,Acme Oil,Company,acme-A,"))
	assert.True(t, strings.HasPrefix(lines[3], "3,Noor,Individual,noor-A,"))

	pdf, err := f.svc.Roster(context.Background(), "b1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdf.ContentType)
	assert.True(t, strings.HasPrefix(string(pdf.Body), "%PDF"))

	_, err = f.svc.Roster(context.Background(), "b1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
