package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Text is a loosely typed string field. Clients send strings, numbers or
// booleans for the same field across trial types; all are stored as text and
// structured values keep their JSON encoding.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(b)
	return nil
}

// Number is a numeric field that also accepts numeric strings.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("number: %s is neither a number nor a string", b)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("number: %q: %w", s, err)
	}
	*n = Number(f)
	return nil
}

// Num returns a pointer to n, for optional numeric fields.
func Num(f float64) *Number {
	n := Number(f)
	return &n
}

var leadingFloat = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseNodeID extracts the number a node id starts with, the way parseFloat
// reads "0.0-2.0-1.0" as 0. It returns nil when the id has no numeric prefix.
func ParseNodeID(id string) *Number {
	m := leadingFloat.FindString(id)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return nil
	}
	return Num(f)
}

// LogRecord is one trial log entry as posted by the client and stored by the sink.
type LogRecord struct {
	ID        string    `json:"-" gorm:"column:id;primaryKey;type:varchar(36)"`
	CreatedAt time.Time `json:"-" gorm:"column:created_at;autoCreateTime"`

	RT             *Number `json:"rt,omitempty" gorm:"column:rt"`
	TrialType      Text    `json:"trial_type,omitempty" gorm:"column:trial_type;type:varchar(64);index"`
	TrialIndex     *Number `json:"trial_index,omitempty" gorm:"column:trial_index"`
	TimeElapsed    *Number `json:"time_elapsed,omitempty" gorm:"column:time_elapsed"`
	InternalNodeID *Number `json:"internal_node_id,omitempty" gorm:"column:internal_node_id"`
	Subject        Text    `json:"subject,omitempty" gorm:"column:subject;type:varchar(128);index"`
	Response       Text    `json:"response,omitempty" gorm:"column:response;type:text"`
	Pic            Text    `json:"pic,omitempty" gorm:"column:pic;type:text"`
	Stimulus       Text    `json:"stimulus,omitempty" gorm:"column:stimulus;type:text"`
	Block          Text    `json:"block,omitempty" gorm:"column:block;type:varchar(64)"`
	StudyID        Text    `json:"study_id,omitempty" gorm:"column:study_id;type:varchar(128)"`
	SessionID      Text    `json:"session_id,omitempty" gorm:"column:session_id;type:varchar(128);index"`
	Video1         Text    `json:"video1,omitempty" gorm:"column:video1;type:text"`
	Video2         Text    `json:"video2,omitempty" gorm:"column:video2;type:text"`
	ChosenVideo    Text    `json:"chosen_video,omitempty" gorm:"column:chosen_video;type:text"`
	ChosenObject   Text    `json:"chosen_object,omitempty" gorm:"column:chosen_object;type:varchar(32)"`
	ChosenPosition Text    `json:"chosen_position,omitempty" gorm:"column:chosen_position;type:varchar(16)"`
	Explanation    Text    `json:"explanation,omitempty" gorm:"column:explanation;type:text"`
	LeftVideoName  Text    `json:"leftVideo,omitempty" gorm:"column:left_video_name;type:text"`
	RightVideoName Text    `json:"rightVideo,omitempty" gorm:"column:right_video_name;type:text"`
	LeftObject     Text    `json:"leftObject,omitempty" gorm:"column:left_object;type:text"`
	RightObject    Text    `json:"rightObject,omitempty" gorm:"column:right_object;type:text"`
	LeftVideo      Text    `json:"left_video,omitempty" gorm:"column:left_video;type:text"`
	RightVideo     Text    `json:"right_video,omitempty" gorm:"column:right_video;type:text"`
}

// TableName sets the storage table name.
func (LogRecord) TableName() string { return "trial_logs" }

// VideoDescriptor is one entry of a categorized videos listing.
type VideoDescriptor struct {
	Path     string `json:"path"`
	Folder   int    `json:"folder"`
	FullName string `json:"fullName"`
}
