// Package meal requests meal suggestions for taken items from a local
// text-generation service (Ollama's /api/generate).
//
// A request is a single POST of {model, prompt, stream:false} with an explicit
// timeout and no retry. Suggest never returns a Go error; it classifies the
// exchange into a Result: success, degraded (the service answered but the
// response field was missing, unparseable, or empty), service_error (non-2xx
// status, with code and body), or unreachable (transport fault).
//
// The prompt embeds the taken items and the user's profile and, when
// structured output is requested, a fixed MEAL/DESCRIPTION/CALORIES/
// INGREDIENTS/INSTRUCTIONS layout that ParseMeals understands.
package meal
