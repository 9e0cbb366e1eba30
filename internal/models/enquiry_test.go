package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/training-admin-api/pkg/errors"
)

func TestEnquiryTransitions(t *testing.T) {
	cases := []struct {
		from EnquiryStatus
		to   EnquiryStatus
		ok   bool
	}{
		{EnquiryStatusDraft, EnquiryStatusQuotationSent, true},
		{EnquiryStatusDraft, EnquiryStatusCompleted, false},
		{EnquiryStatusQuotationSent, EnquiryStatusAgreementPending, true},
		{EnquiryStatusAgreementPending, EnquiryStatusAgreementSent, true},
		{EnquiryStatusAgreementSent, EnquiryStatusPendingNomination, true},
		{EnquiryStatusPendingNomination, EnquiryStatusNominated, true},
		{EnquiryStatusNominated, EnquiryStatusPendingNomination, true},
		{EnquiryStatusNominated, EnquiryStatusScheduled, true},
		{EnquiryStatusScheduled, EnquiryStatusCompleted, true},
		{EnquiryStatusScheduled, EnquiryStatusDraft, false},
		{EnquiryStatusCompleted, EnquiryStatusCancelled, false},
		{EnquiryStatusCancelled, EnquiryStatusDraft, false},
		{EnquiryStatusAgreementSent, EnquiryStatusCancelled, true},
	}

	for _, tc := range cases {
		err := ValidateEnquiryTransition(tc.from, tc.to)
		if tc.ok {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
			continue
		}
		require.Error(t, err, "%s -> %s", tc.from, tc.to)
		assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	}

	assert.True(t, EnquiryStatusCompleted.Terminal())
	assert.True(t, EnquiryStatusCancelled.Terminal())
	assert.False(t, EnquiryStatusDraft.Terminal())
}

func TestEnquiryApplyStatus(t *testing.T) {
	now := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

	t.Run("stamps quotation date", func(t *testing.T) {
		e := Enquiry{Status: EnquiryStatusDraft}
		require.NoError(t, e.ApplyStatus(EnquiryStatusQuotationSent, false, now))
		assert.Equal(t, EnquiryStatusQuotationSent, e.Status)
		require.NotNil(t, e.QuotationSentDate)
		assert.Equal(t, now, *e.QuotationSentDate)
	})

	t.Run("stamps agreement date", func(t *testing.T) {
		e := Enquiry{Status: EnquiryStatusAgreementPending}
		require.NoError(t, e.ApplyStatus(EnquiryStatusAgreementSent, false, now))
		require.NotNil(t, e.AgreementSentDate)
	})

	t.Run("rejects illegal jump without force", func(t *testing.T) {
		e := Enquiry{Status: EnquiryStatusDraft}
		err := e.ApplyStatus(EnquiryStatusCompleted, false, now)
		require.Error(t, err)
		assert.Equal(t, EnquiryStatusDraft, e.Status)
	})

	t.Run("force bypasses table", func(t *testing.T) {
		e := Enquiry{Status: EnquiryStatusDraft}
		require.NoError(t, e.ApplyStatus(EnquiryStatusCompleted, true, now))
		assert.Equal(t, EnquiryStatusCompleted, e.Status)
	})

	t.Run("unknown status is a validation error", func(t *testing.T) {
		e := Enquiry{Status: EnquiryStatusDraft}
		err := e.ApplyStatus("Archived", true, now)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})
}

func TestEnquiryApplyNomination(t *testing.T) {
	now := time.Now().UTC()
	trainees := []Trainee{{CivilID: "1", Name: "A"}, {CivilID: "2", Name: "B"}}
	batch := &Batch{ID: "batch-uuid", BatchID: "Batch-F-001", CourseName: "Fire Safety"}

	e := Enquiry{EnquiryID: "ENQ-001", Course: "Fire Safety", Requested: 2, Status: EnquiryStatusPendingNomination}
	require.NoError(t, e.ApplyNomination(batch, trainees, now))
	assert.Equal(t, EnquiryStatusNominated, e.Status)
	assert.Equal(t, 2, e.Nominated)
	assert.Equal(t, 0, e.Pending())
	assert.Equal(t, "Batch-F-001", *e.BatchNumber)
	assert.Equal(t, "batch-uuid", *e.BatchRef)
	assert.Len(t, e.Nominees, 2)

	// renomination into the same batch is allowed
	require.NoError(t, e.ApplyNomination(batch, trainees[:1], now))
	assert.Equal(t, 1, e.Nominated)
	assert.Equal(t, 1, e.Pending())

	over := Enquiry{Course: "Fire Safety", Requested: 1, Status: EnquiryStatusPendingNomination}
	err := over.ApplyNomination(batch, trainees, now)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, over.Nominated)

	draft := Enquiry{Course: "Fire Safety", Requested: 5, Status: EnquiryStatusDraft}
	err = draft.ApplyNomination(batch, trainees, now)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestEnquiryApplyNominationKeepsOneBatch(t *testing.T) {
	now := time.Now().UTC()
	trainees := []Trainee{{CivilID: "1", Name: "A"}}
	first := &Batch{ID: "b1", BatchID: "Batch-F-001", CourseName: "Fire Safety"}
	second := &Batch{ID: "b2", BatchID: "Batch-F-002", CourseName: "Fire Safety"}

	e := Enquiry{EnquiryID: "ENQ-001", Course: "fire safety ", Requested: 3, Status: EnquiryStatusPendingNomination}
	require.NoError(t, e.ApplyNomination(first, trainees, now), "course names match case-insensitively")

	err := e.ApplyNomination(second, trainees, now)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Equal(t, "b1", *e.BatchRef)
	assert.Equal(t, "Batch-F-001", *e.BatchNumber)

	other := Enquiry{EnquiryID: "ENQ-002", Course: "First Aid", Requested: 3, Status: EnquiryStatusPendingNomination}
	err = other.ApplyNomination(first, trainees, now)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, other.BatchRef)
}

func TestEnquiryValidate(t *testing.T) {
	start := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	valid := Enquiry{Requested: 3, StartDate: start, EndDate: start}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.Requested = 0
	assert.Error(t, bad.Validate())

	bad = valid
	bad.EndDate = start.AddDate(0, 0, -1)
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Nominated = 4
	assert.Error(t, bad.Validate())
}

func TestEnquiryJSONIncludesPending(t *testing.T) {
	raw, err := json.Marshal(Enquiry{EnquiryID: "ENQ-007", Requested: 5, Nominated: 2})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "ENQ-007", decoded["enquiry_id"])
	assert.EqualValues(t, 3, decoded["pending"])
}

func TestTraineesScan(t *testing.T) {
	var list Trainees
	require.NoError(t, list.Scan([]byte(`[{"civil_id":"9","name":"Z"}]`)))
	require.Len(t, list, 1)
	assert.Equal(t, "9", list[0].CivilID)

	var empty Trainees
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)

	v, err := Trainees(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)
}
