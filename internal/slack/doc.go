// Package slack talks to the Slack Web API and incoming webhooks.
//
// Three outbound paths live here:
//   - ProfileResolver reads users.profile.get (memoized per user id).
//   - Webhook posts messages into the invoking channel.
//   - Diagnostics posts error reports and mirrored log lines to the ops
//     channel with chat.postMessage.
package slack
