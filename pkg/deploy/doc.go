/*
The deploy package implements kdeploy's deployment algorithm. It decides which
files in a local workspace must be copied to the remote directory, copies them
with bounded concurrency, and remembers what was copied so that the next
deployment can be incremental.

A deployment has four modes:
 1. changed -- Files whose local or remote modification time differs from the
    snapshot taken at the end of the last successful `changed` deployment.
    The remote times are listed with a single find(1) invocation, so this mode
    is only offered when the remote find supports `-printf`.
 2. working -- Files that git reports as changed in the working tree.
 3. staged -- Files that git reports as staged in the index.
 4. all -- Every file in the workspace.

The `changed` and `all` modes skip files matched by the workspace's ignore
rules. The git modes don't, since git's own ignore handling already excluded
anything the user doesn't track.

The snapshot is only written after every file in a `changed` deployment was
copied successfully. Otherwise, files that failed to copy would look up to
date during the next deployment.

Deployments for the same workspace are assumed to be serialized. The
Controller enforces this within a process, but two processes deploying the
same workspace race on the snapshot, and the last writer wins.
*/
package deploy
