package apierr

// Code is a machine-readable reason the backend puts in the "message" field
// of an error body. Only codes listed here are ever shown to users.
type Code string

const (
	CodeTitleTooShort          Code = "title-too-short"
	CodeTitleTooLong           Code = "title-too-long"
	CodeContentEmpty           Code = "content-empty"
	CodeContentTooLong         Code = "content-too-long"
	CodeNameEmpty              Code = "name-empty"
	CodeInvalidDate            Code = "invalid-date"
	CodeInvalidDuration        Code = "invalid-duration"
	CodeMeetingInPast          Code = "meeting-in-past"
	CodeInvalidEmail           Code = "invalid-email"
	CodeQueryTooShort          Code = "query-too-short"
	CodeInvalidCredentials     Code = "invalid-credentials"
	CodeProjectNotFound        Code = "project-not-found"
	CodeUserNotFound           Code = "user-not-found"
	CodeSectionNotFound        Code = "section-not-found"
	CodeAnnouncementNotFound   Code = "announcement-not-found"
	CodeMeetingNotFound        Code = "meeting-not-found"
	CodeCallNotFound           Code = "call-not-found"
	CodeInvitationNotFound     Code = "invitation-not-found"
	CodeInsufficientPermission Code = "insufficient-permissions"
	CodeNotProjectMember       Code = "not-project-member"
	CodeSectionNameTaken       Code = "section-name-taken"
	CodeAlreadyMember          Code = "already-member"
	CodeInvitationAlreadySent  Code = "invitation-already-sent"
	CodeCallAlreadyActive      Code = "call-already-active"
)

var codeMessages = map[Code]string{
	CodeTitleTooShort:          "the title is too short",
	CodeTitleTooLong:           "the title is too long",
	CodeContentEmpty:           "the content cannot be empty",
	CodeContentTooLong:         "the content is too long",
	CodeNameEmpty:              "the name cannot be empty",
	CodeInvalidDate:            "the date is not valid",
	CodeInvalidDuration:        "the duration must be greater than zero",
	CodeMeetingInPast:          "the meeting cannot start in the past",
	CodeInvalidEmail:           "the email address is not valid",
	CodeQueryTooShort:          "the search term is too short",
	CodeInvalidCredentials:     "wrong email or password",
	CodeProjectNotFound:        "project not found",
	CodeUserNotFound:           "user not found",
	CodeSectionNotFound:        "section not found",
	CodeAnnouncementNotFound:   "announcement not found",
	CodeMeetingNotFound:        "meeting not found",
	CodeCallNotFound:           "call not found",
	CodeInvitationNotFound:     "invitation not found",
	CodeInsufficientPermission: "you do not have enough permissions in this project",
	CodeNotProjectMember:       "you are not a member of this project",
	CodeSectionNameTaken:       "a section with that name already exists",
	CodeAlreadyMember:          "the user is already a member of the project",
	CodeInvitationAlreadySent:  "an invitation was already sent to that user",
	CodeCallAlreadyActive:      "there is already an active call",
}

// Message returns the human string for a known code.
func (c Code) Message() (string, bool) {
	m, ok := codeMessages[c]
	return m, ok
}

func (c Code) Known() bool {
	_, ok := codeMessages[c]
	return ok
}
