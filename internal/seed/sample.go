package seed

import "attendboard/internal/model"

// SampleStudents is the demo roster.
var SampleStudents = []model.StudentInput{
	{Name: "John Smith", ExternalCode: "STU001"},
	{Name: "Maria Garcia", ExternalCode: "STU002"},
	{Name: "Ahmed Khan", ExternalCode: "STU003"},
	{Name: "Sarah Johnson", ExternalCode: "STU004"},
	{Name: "Li Wei", ExternalCode: "STU005"},
	{Name: "Olivia Brown", ExternalCode: "STU006"},
	{Name: "Carlos Mendez", ExternalCode: "STU007"},
	{Name: "Emma Wilson", ExternalCode: "STU008"},
	{Name: "David Lee", ExternalCode: "STU009"},
	{Name: "Sophie Chen", ExternalCode: "STU010"},
}

// UnknownFaceMessages become the demo alerts.
var UnknownFaceMessages = []string{
	"Unknown person detected in classroom",
	"Unrecognized face detected during attendance",
	"Unknown individual entered classroom",
	"Face not recognized in student database",
	"Unfamiliar person detected",
}
