// Package ffmpeg partitions a video into square looping clips.
//
// The work happens in two stages, each an ffmpeg subprocess:
//
//   - normalize: letterbox the source onto a square transparent canvas,
//     trimmed to the clip duration, VP9 with alpha.
//   - crop: one run per tile, row outer and column inner, cutting the
//     normalized canvas into TileSize×TileSize clips.
//
// Crops run strictly one after another to bound the number of live
// processes and open files. builder.go produces the argument lists,
// executor.go runs them, video.go drives the stages.
package ffmpeg
