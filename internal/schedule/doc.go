// Package schedule defines the station records supplied by the
// broadcast-schedule collaborator. The control core only reads these;
// fetching and parsing the schedule source lives outside this module.
package schedule
