package league

import "strings"

// Submission registry: per-round collection keyed by submitter, at most one
// active submission per member. All functions operate on a Round already held
// inside Store.Mutate.

// ApplySubmission records or replaces memberID's submission while collecting.
// A resubmitted link overwrites the link fields and clears the previous
// description, so the member re-confirms context for the new song.
func ApplySubmission(r *Round, memberID, url, videoID, title string) error {
	if r == nil || r.Phase != PhaseCollecting {
		return ErrWrongPhase
	}
	for i := range r.Submissions {
		if r.Submissions[i].MemberID == memberID {
			r.Submissions[i].URL = url
			r.Submissions[i].VideoID = videoID
			r.Submissions[i].Title = title
			r.Submissions[i].Description = ""
			return nil
		}
	}
	r.Submissions = append(r.Submissions, Submission{
		MemberID: memberID,
		URL:      url,
		VideoID:  videoID,
		Title:    title,
	})
	return nil
}

// SetDescription attaches a description to memberID's existing submission.
func SetDescription(r *Round, memberID, text string) error {
	if r == nil || r.Phase != PhaseCollecting {
		return ErrWrongPhase
	}
	for i := range r.Submissions {
		if r.Submissions[i].MemberID == memberID {
			r.Submissions[i].Description = strings.TrimSpace(text)
			return nil
		}
	}
	return ErrNoSubmission
}

// Freeze snapshots the submissions in arrival order, fixing 1-based entry IDs
// for voting. Calling it twice on a round is an error.
func Freeze(r *Round) error {
	if r == nil {
		return ErrNoActiveRound
	}
	if r.Numbered != nil {
		return ErrAlreadyFrozen
	}
	numbered := make([]Submission, len(r.Submissions))
	copy(numbered, r.Submissions)
	r.Numbered = numbered
	return nil
}

// SubmissionFor returns memberID's submission, if any.
func SubmissionFor(r *Round, memberID string) *Submission {
	if r == nil {
		return nil
	}
	for i := range r.Submissions {
		if r.Submissions[i].MemberID == memberID {
			return &r.Submissions[i]
		}
	}
	return nil
}
