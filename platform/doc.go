// Package platform holds the vocabulary shared by the watchdog and the
// live-platform adapters: status checkers, session connectors, the events an
// open session pushes while connected, and control-code predicates.
//
// Adapters live in their own packages (twitchapi, chat, tiktok, youtubeapi);
// this package only defines what they must satisfy.
package platform
