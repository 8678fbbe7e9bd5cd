package gqlclient

const pingQuery = `query Ping { __typename }`

// records schema

const listStudentsQuery = `query ListStudents($limit: Int, $nextToken: String) {
  listStudents(limit: $limit, nextToken: $nextToken) {
    items { id name studentIDNumber }
    nextToken
  }
}`

const listAttendanceRecordsQuery = `query ListAttendanceRecords($filter: ModelAttendanceRecordFilterInput, $limit: Int, $nextToken: String) {
  listAttendanceRecords(filter: $filter, limit: $limit, nextToken: $nextToken) {
    items { id studentID timestamp status }
    nextToken
  }
}`

const listAlertsQuery = `query ListAlerts($limit: Int, $nextToken: String) {
  listAlerts(limit: $limit, nextToken: $nextToken) {
    items { id message timestamp alertType imageUrl acknowledged }
    nextToken
  }
}`

const createStudentMutation = `mutation CreateStudent($input: CreateStudentInput!) {
  createStudent(input: $input) { id name studentIDNumber }
}`

const createAttendanceRecordMutation = `mutation CreateAttendanceRecord($input: CreateAttendanceRecordInput!) {
  createAttendanceRecord(input: $input) { id studentID timestamp status }
}`

const createAlertMutation = `mutation CreateAlert($input: CreateAlertInput!) {
  createAlert(input: $input) { id message timestamp alertType imageUrl acknowledged }
}`

// legacy schema
//
// The imported Attendance table has no id column; rows are keyed by StudentID and Date.

const listFaceIndicesQuery = `query ListFaceIndices($limit: Int, $nextToken: String) {
  listFaceIndices(limit: $limit, nextToken: $nextToken) {
    items { StudentID Name }
    nextToken
  }
}`

const listAttendancesQuery = `query ListAttendances($filter: ModelAttendanceFilterInput, $limit: Int, $nextToken: String) {
  listAttendances(filter: $filter, limit: $limit, nextToken: $nextToken) {
    items { StudentID Date Time Image Name }
    nextToken
  }
}`

const createFaceIndexMutation = `mutation CreateFaceIndex($input: CreateFaceIndexInput!) {
  createFaceIndex(input: $input) { StudentID Name }
}`

const createAttendanceMutation = `mutation CreateAttendance($input: CreateAttendanceInput!) {
  createAttendance(input: $input) { StudentID Date Time Image Name }
}`
